package catalog

import (
	"time"

	validation "github.com/go-ozzo/ozzo-validation/v4"
	"github.com/go-ozzo/ozzo-validation/v4/is"
	"github.com/shopspring/decimal"
	"github.com/uptrace/bun"
	"github.com/vmihailenco/msgpack/v5"
)

// Admin roles.
const (
	RoleAdmin      = "admin"
	RoleSuperAdmin = "super_admin"
)

// Audit action types.
const (
	ActionCreate     = "create"
	ActionUpdate     = "update"
	ActionDelete     = "delete"
	ActionRestore    = "restore"
	ActionActivate   = "activate"
	ActionDeactivate = "deactivate"
	ActionAssociate  = "associate"
	ActionDissociate = "dissociate"
	ActionSync       = "sync"
)

// Category is a self-referencing tree node. Any structural write must keep
// the cached children lists of both affected parents and the tree
// aggregates coherent; the repository layer owns that cascade.
type Category struct {
	bun.BaseModel `bun:"table:categories,alias:c"`

	ID        int64     `bun:"id,pk,autoincrement"`
	Name      string    `bun:"name,notnull"`
	Slug      string    `bun:"slug,notnull,unique"`
	ParentID  *int64    `bun:"parent_id"`
	Active    bool      `bun:"active,notnull,default:true"`
	CreatedAt time.Time `bun:"created_at,notnull"`
	UpdatedAt time.Time `bun:"updated_at,notnull"`
	DeletedAt time.Time `bun:"deleted_at,soft_delete,nullzero"`
}

func (c *Category) Validate() error {
	return validation.ValidateStruct(c,
		validation.Field(&c.Name, validation.Required, validation.Length(1, 255)),
		validation.Field(&c.Slug, validation.Required, validation.Length(1, 255)),
		validation.Field(&c.ParentID, validation.By(optionalPositiveID)),
	)
}

// Product belongs to a category and carries the volatile work-queue flags
// whose listings cache with the short TTL.
type Product struct {
	bun.BaseModel `bun:"table:products,alias:p"`

	ID               int64     `bun:"id,pk,autoincrement"`
	Name             string    `bun:"name,notnull"`
	Slug             string    `bun:"slug,notnull,unique"`
	CategoryID       int64     `bun:"category_id,notnull"`
	Active           bool      `bun:"active,notnull,default:true"`
	NeedsValidation  bool      `bun:"needs_validation,notnull,default:false"`
	NeedsPriceUpdate bool      `bun:"needs_price_update,notnull,default:false"`
	CreatedAt        time.Time `bun:"created_at,notnull"`
	UpdatedAt        time.Time `bun:"updated_at,notnull"`
	DeletedAt        time.Time `bun:"deleted_at,soft_delete,nullzero"`
}

func (p *Product) Validate() error {
	return validation.ValidateStruct(p,
		validation.Field(&p.Name, validation.Required, validation.Length(1, 255)),
		validation.Field(&p.Slug, validation.Required, validation.Length(1, 255)),
		validation.Field(&p.CategoryID, validation.Required, validation.Min(int64(1))),
	)
}

// Link is the revenue-bearing entity: a persisted price and a persisted
// cumulative affiliate revenue. The commission rate used to derive revenue
// deltas is request-scoped and never stored.
type Link struct {
	bun.BaseModel `bun:"table:links,alias:l"`

	ID               int64           `bun:"id,pk,autoincrement"`
	ProductID        int64           `bun:"product_id,notnull"`
	MarketplaceID    int64           `bun:"marketplace_id,notnull"`
	URL              string          `bun:"url,notnull"`
	Price            decimal.Decimal `bun:"price,notnull,type:numeric(12,2)"`
	AffiliateRevenue decimal.Decimal `bun:"affiliate_revenue,notnull,type:numeric(14,2)"`
	Active           bool            `bun:"active,notnull,default:true"`
	CreatedAt        time.Time       `bun:"created_at,notnull"`
	UpdatedAt        time.Time       `bun:"updated_at,notnull"`
	DeletedAt        time.Time       `bun:"deleted_at,soft_delete,nullzero"`
}

func (l *Link) Validate() error {
	return validation.ValidateStruct(l,
		validation.Field(&l.ProductID, validation.Required, validation.Min(int64(1))),
		validation.Field(&l.MarketplaceID, validation.Required, validation.Min(int64(1))),
		validation.Field(&l.URL, validation.Required, is.URL),
		validation.Field(&l.Price, validation.By(nonNegativeDecimal)),
	)
}

// Decimal fields hold unexported state, so Link spells out its cache
// encoding instead of relying on reflection.
var (
	_ msgpack.CustomEncoder = (*Link)(nil)
	_ msgpack.CustomDecoder = (*Link)(nil)
)

func (l *Link) EncodeMsgpack(enc *msgpack.Encoder) error {
	return enc.EncodeMulti(
		l.ID, l.ProductID, l.MarketplaceID, l.URL,
		l.Price.String(), l.AffiliateRevenue.String(),
		l.Active, l.CreatedAt, l.UpdatedAt, l.DeletedAt,
	)
}

func (l *Link) DecodeMsgpack(dec *msgpack.Decoder) error {
	var price, revenue string
	if err := dec.DecodeMulti(
		&l.ID, &l.ProductID, &l.MarketplaceID, &l.URL,
		&price, &revenue,
		&l.Active, &l.CreatedAt, &l.UpdatedAt, &l.DeletedAt,
	); err != nil {
		return err
	}

	var err error
	if l.Price, err = decimal.NewFromString(price); err != nil {
		return err
	}
	l.AffiliateRevenue, err = decimal.NewFromString(revenue)
	return err
}

// Marketplace is flat reference data.
type Marketplace struct {
	bun.BaseModel `bun:"table:marketplaces,alias:m"`

	ID        int64     `bun:"id,pk,autoincrement"`
	Name      string    `bun:"name,notnull"`
	Domain    string    `bun:"domain,notnull,unique"`
	Active    bool      `bun:"active,notnull,default:true"`
	CreatedAt time.Time `bun:"created_at,notnull"`
	UpdatedAt time.Time `bun:"updated_at,notnull"`
	DeletedAt time.Time `bun:"deleted_at,soft_delete,nullzero"`
}

func (m *Marketplace) Validate() error {
	return validation.ValidateStruct(m,
		validation.Field(&m.Name, validation.Required, validation.Length(1, 255)),
		validation.Field(&m.Domain, validation.Required, is.Host),
	)
}

// Badge is mostly reference data; the common subset caches forever and is
// invalidated only explicitly.
type Badge struct {
	bun.BaseModel `bun:"table:badges,alias:b"`

	ID        int64     `bun:"id,pk,autoincrement"`
	Name      string    `bun:"name,notnull,unique"`
	Icon      string    `bun:"icon"`
	Common    bool      `bun:"common,notnull,default:false"`
	Active    bool      `bun:"active,notnull,default:true"`
	CreatedAt time.Time `bun:"created_at,notnull"`
	UpdatedAt time.Time `bun:"updated_at,notnull"`
	DeletedAt time.Time `bun:"deleted_at,soft_delete,nullzero"`
}

func (b *Badge) Validate() error {
	return validation.ValidateStruct(b,
		validation.Field(&b.Name, validation.Required, validation.Length(1, 255)),
	)
}

// ProductBadge is a pure association row addressed by the ordered
// (ProductID, BadgeID) pair; it has no surrogate id.
type ProductBadge struct {
	bun.BaseModel `bun:"table:product_badges,alias:pb"`

	ProductID  int64     `bun:"product_id,pk"`
	BadgeID    int64     `bun:"badge_id,pk"`
	AssignedBy *string   `bun:"assigned_by"`
	CreatedAt  time.Time `bun:"created_at,notnull"`
}

func (pb *ProductBadge) Validate() error {
	return validation.ValidateStruct(pb,
		validation.Field(&pb.ProductID, validation.Required, validation.Min(int64(1))),
		validation.Field(&pb.BadgeID, validation.Required, validation.Min(int64(1))),
		validation.Field(&pb.AssignedBy, validation.When(pb.AssignedBy != nil, is.UUIDv4)),
	)
}

// Admin is an operator account. Role transitions that would leave the
// system without an active super-admin are refused by the repository.
type Admin struct {
	bun.BaseModel `bun:"table:admins,alias:a"`

	ID        string    `bun:"id,pk,type:uuid"`
	Email     string    `bun:"email,notnull,unique"`
	Name      string    `bun:"name,notnull"`
	Role      string    `bun:"role,notnull,default:'admin'"`
	Active    bool      `bun:"active,notnull,default:true"`
	CreatedAt time.Time `bun:"created_at,notnull"`
	UpdatedAt time.Time `bun:"updated_at,notnull"`
	DeletedAt time.Time `bun:"deleted_at,soft_delete,nullzero"`
}

func (a *Admin) Validate() error {
	return validation.ValidateStruct(a,
		validation.Field(&a.ID, validation.Required, is.UUIDv4),
		validation.Field(&a.Email, validation.Required, is.Email),
		validation.Field(&a.Name, validation.Required, validation.Length(1, 255)),
		validation.Field(&a.Role, validation.Required, validation.In(RoleAdmin, RoleSuperAdmin)),
	)
}

// AuditRecord is the write-once audit side effect. Rows are appended by the
// transaction coordinator after commit and never mutated afterwards.
type AuditRecord struct {
	bun.BaseModel `bun:"table:audit_records,alias:ar"`

	ID             string         `bun:"id,pk,type:uuid"`
	ActorID        *string        `bun:"actor_id"`
	EntityType     string         `bun:"entity_type,notnull"`
	EntityID       string         `bun:"entity_id,notnull"`
	Action         string         `bun:"action,notnull"`
	OldValues      map[string]any `bun:"old_values,type:jsonb"`
	NewValues      map[string]any `bun:"new_values,type:jsonb"`
	ChangesSummary string         `bun:"changes_summary"`
	IPAddress      *string        `bun:"ip_address"`
	UserAgent      *string        `bun:"user_agent"`
	PerformedAt    time.Time      `bun:"performed_at,notnull"`
}

func optionalPositiveID(value any) error {
	id, ok := value.(*int64)
	if !ok || id == nil {
		return nil
	}
	if *id < 1 {
		return validation.NewError("validation_positive_id", "must be a positive id")
	}
	return nil
}

func nonNegativeDecimal(value any) error {
	d, ok := value.(decimal.Decimal)
	if !ok {
		return validation.NewError("validation_decimal", "must be a decimal")
	}
	if d.IsNegative() {
		return validation.NewError("validation_non_negative", "must not be negative")
	}
	return nil
}
