package cache

import (
	"encoding/json"
	"fmt"
	"reflect"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/cespare/xxhash/v2"
)

// KeySeparator delimits the segments of a cache key:
// {namespace}:{kind}:{discriminator}.
const KeySeparator = ":"

// Key kinds. Entity keys address one record by identity, query keys address
// the memoized result of a parameterized read.
const (
	kindEntity = "entity"
	kindQuery  = "query"
)

// KeyDeriver builds deterministic cache keys for a repository namespace.
// Implementations must guarantee that semantically identical inputs produce
// identical keys across processes and runs.
type KeyDeriver interface {
	EntityKey(namespace string, id any) string
	CompositeEntityKey(namespace string, ownerID, relatedID int64) string
	QueryKey(namespace, action string, params map[string]any) string
	QueryPattern(namespace string) string
	NamespacePattern(namespace string) string
}

// defaultKeyDeriver canonicalizes parameters through reflection (recursively
// sorted map keys, deterministic scalar formatting) and digests them with
// xxhash so equal filter sets collide to the same query key regardless of
// construction order. Entity discriminators are kept verbatim so point
// lookups stay debuggable.
type defaultKeyDeriver struct{}

// NewKeyDeriver returns the default key deriver.
func NewKeyDeriver() KeyDeriver {
	return &defaultKeyDeriver{}
}

// EntityKey builds "{ns}:entity:{id}".
func (d *defaultKeyDeriver) EntityKey(namespace string, id any) string {
	return join(namespace, kindEntity, d.canonical(id))
}

// CompositeEntityKey builds "{ns}:entity:{ownerID}_{relatedID}". The ordered
// pair is serialized directly, never hashed, so association rows can be
// located by eye in the cache store.
func (d *defaultKeyDeriver) CompositeEntityKey(namespace string, ownerID, relatedID int64) string {
	return join(namespace, kindEntity, FormatCompositeID(ownerID, relatedID))
}

// QueryKey builds "{ns}:query:{action}" for parameterless reads and
// "{ns}:query:{action}:{digest}" otherwise. The digest is an xxhash of the
// canonicalized parameter map.
func (d *defaultKeyDeriver) QueryKey(namespace, action string, params map[string]any) string {
	action = toSnake(action)
	if len(params) == 0 {
		return join(namespace, kindQuery, action)
	}
	digest := xxhash.Sum64String(d.canonical(params))
	return join(namespace, kindQuery, action, strconv.FormatUint(digest, 16))
}

// QueryPattern matches every query key in the namespace.
func (d *defaultKeyDeriver) QueryPattern(namespace string) string {
	return join(namespace, kindQuery, "*")
}

// NamespacePattern matches every key in the namespace.
func (d *defaultKeyDeriver) NamespacePattern(namespace string) string {
	return namespace + KeySeparator + "*"
}

// FormatCompositeID serializes the order-significant owner/related pair.
func FormatCompositeID(ownerID, relatedID int64) string {
	return strconv.FormatInt(ownerID, 10) + "_" + strconv.FormatInt(relatedID, 10)
}

func join(parts ...string) string {
	return strings.Join(parts, KeySeparator)
}

// canonical renders any value into a stable string form. Map keys are sorted
// recursively, pointers are dereferenced, and times normalize to UTC
// RFC3339Nano so call-site differences never leak into the digest.
func (d *defaultKeyDeriver) canonical(v any) string {
	if v == nil {
		return "nil"
	}

	if t, ok := v.(time.Time); ok {
		return t.UTC().Format(time.RFC3339Nano)
	}

	rv := reflect.ValueOf(v)
	rt := reflect.TypeOf(v)

	switch rt.Kind() {
	case reflect.Ptr:
		if rv.IsNil() {
			return "nil"
		}
		return d.canonical(rv.Elem().Interface())

	case reflect.Slice:
		if rv.IsNil() {
			return "[]"
		}
		return d.canonicalList(rv)

	case reflect.Array:
		return d.canonicalList(rv)

	case reflect.Map:
		if rv.IsNil() {
			return "{}"
		}
		return d.canonicalMap(rv)

	case reflect.Struct:
		return d.canonicalStruct(rv, rt)

	case reflect.Interface:
		if rv.IsNil() {
			return "nil"
		}
		return d.canonical(rv.Elem().Interface())

	case reflect.Bool:
		return strconv.FormatBool(rv.Bool())

	case reflect.Int, reflect.Int8, reflect.Int16, reflect.Int32, reflect.Int64:
		return strconv.FormatInt(rv.Int(), 10)

	case reflect.Uint, reflect.Uint8, reflect.Uint16, reflect.Uint32, reflect.Uint64:
		return strconv.FormatUint(rv.Uint(), 10)

	case reflect.Float32, reflect.Float64:
		return strconv.FormatFloat(rv.Float(), 'g', -1, 64)

	case reflect.String:
		return rv.String()
	}

	// Last resort for exotic types: JSON, then the type name.
	if data, err := json.Marshal(v); err == nil {
		return string(data)
	}
	return fmt.Sprintf("<%s>", rt.String())
}

func (d *defaultKeyDeriver) canonicalList(rv reflect.Value) string {
	parts := make([]string, rv.Len())
	for i := 0; i < rv.Len(); i++ {
		parts[i] = d.canonical(rv.Index(i).Interface())
	}
	return "[" + strings.Join(parts, ",") + "]"
}

func (d *defaultKeyDeriver) canonicalMap(rv reflect.Value) string {
	type pair struct{ k, v string }

	pairs := make([]pair, 0, rv.Len())
	iter := rv.MapRange()
	for iter.Next() {
		pairs = append(pairs, pair{
			k: d.canonical(iter.Key().Interface()),
			v: d.canonical(iter.Value().Interface()),
		})
	}
	sort.Slice(pairs, func(i, j int) bool { return pairs[i].k < pairs[j].k })

	parts := make([]string, len(pairs))
	for i, p := range pairs {
		parts[i] = p.k + "=" + p.v
	}
	return "{" + strings.Join(parts, ",") + "}"
}

func (d *defaultKeyDeriver) canonicalStruct(rv reflect.Value, rt reflect.Type) string {
	parts := make([]string, 0, rv.NumField())
	for i := 0; i < rt.NumField(); i++ {
		field := rt.Field(i)
		if !field.IsExported() {
			continue
		}
		parts = append(parts, field.Name+"="+d.canonical(rv.Field(i).Interface()))
	}
	return "{" + strings.Join(parts, ",") + "}"
}
