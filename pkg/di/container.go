// Package di wires the catalog core: database handle, cache store, key
// deriver, transaction coordinator, audit recorder, and the entity
// repositories, all as singletons built from one Config.
package di

import (
	"database/sql"
	"fmt"
	"log/slog"

	_ "github.com/lib/pq"
	"github.com/redis/go-redis/v9"
	"github.com/shopspring/decimal"
	"github.com/uptrace/bun"
	"github.com/uptrace/bun/dialect/pgdialect"

	"github.com/goliatone/go-catalog-store/audit"
	"github.com/goliatone/go-catalog-store/cache"
	"github.com/goliatone/go-catalog-store/catalog"
	"github.com/goliatone/go-catalog-store/config"
	"github.com/goliatone/go-catalog-store/internal/cacheinfra"
	"github.com/goliatone/go-catalog-store/repository"
	"github.com/goliatone/go-catalog-store/txn"
)

// Container holds the singleton instances of the catalog core. Build one per
// process with NewContainer and share it.
type Container struct {
	cfg config.Config

	db          *bun.DB
	store       cache.Store
	cache       *cache.Cache
	keys        cache.KeyDeriver
	coordinator *txn.Coordinator
	recorder    *audit.Recorder
	auditStore  *audit.Store

	categories   *repository.CategoryRepository
	products     *repository.ProductRepository
	links        *repository.LinkRepository
	marketplaces *repository.MarketplaceRepository
	badges       *repository.BadgeRepository
	productBdgs  *repository.ProductBadgeRepository
	admins       *repository.AdminRepository

	memory *cacheinfra.Memory
}

// NewContainer builds the full dependency graph from cfg. A nil logger falls
// back to slog.Default(). When cfg.Redis.Addr is empty the cache runs on the
// in-process memory store.
func NewContainer(cfg config.Config, log *slog.Logger) (*Container, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	if log == nil {
		log = slog.Default()
	}

	c := &Container{cfg: cfg}

	sqldb, err := sql.Open("postgres", cfg.Database.DSN)
	if err != nil {
		return nil, fmt.Errorf("open database: %w", err)
	}
	sqldb.SetMaxOpenConns(cfg.Database.MaxOpenConns)
	sqldb.SetMaxIdleConns(cfg.Database.MaxIdleConns)
	sqldb.SetConnMaxLifetime(cfg.Database.ConnLifetime)
	c.db = bun.NewDB(sqldb, pgdialect.New())

	if cfg.Redis.Addr != "" {
		client := redis.NewClient(&redis.Options{
			Addr:     cfg.Redis.Addr,
			Password: cfg.Redis.Password,
			DB:       cfg.Redis.DB,
		})
		c.store = cacheinfra.NewRedis(client)
	} else {
		c.memory = cacheinfra.NewMemory(cfg.Cache.SweepInterval)
		c.store = c.memory
	}

	if cfg.DefaultCommissionRate != "" {
		rate, err := decimal.NewFromString(cfg.DefaultCommissionRate)
		if err != nil {
			return nil, fmt.Errorf("invalid default commission rate: %w", err)
		}
		catalog.DefaultCommissionRate = rate
	}

	c.cache = cache.New(c.store, log)
	c.keys = cache.NewKeyDeriver()
	c.auditStore = audit.NewStore(c.db)
	c.recorder = audit.NewRecorder()
	c.coordinator = txn.New(c.db, c.store, c.auditStore, log)

	deps := repository.Deps{
		Coordinator: c.coordinator,
		Cache:       c.cache,
		Keys:        c.keys,
		Recorder:    c.recorder,
		TTL:         cfg.TTLPolicy(),
	}
	c.categories = repository.NewCategoryRepository(deps)
	c.products = repository.NewProductRepository(deps)
	c.links = repository.NewLinkRepository(deps)
	c.marketplaces = repository.NewMarketplaceRepository(deps)
	c.badges = repository.NewBadgeRepository(deps)
	c.productBdgs = repository.NewProductBadgeRepository(deps)
	c.admins = repository.NewAdminRepository(deps)

	return c, nil
}

// Close releases the database handle and stops the memory store sweeper.
func (c *Container) Close() error {
	if c.memory != nil {
		c.memory.Close()
	}
	return c.db.Close()
}

// Config returns a copy of the configuration the container was built from.
func (c *Container) Config() config.Config { return c.cfg }

// DB returns the shared database handle.
func (c *Container) DB() *bun.DB { return c.db }

// CacheStore returns the shared cache backend.
func (c *Container) CacheStore() cache.Store { return c.store }

// Cache returns the read-through cache layer.
func (c *Container) Cache() *cache.Cache { return c.cache }

// KeyDeriver returns the shared key deriver.
func (c *Container) KeyDeriver() cache.KeyDeriver { return c.keys }

// Coordinator returns the transaction coordinator.
func (c *Container) Coordinator() *txn.Coordinator { return c.coordinator }

// AuditStore returns the append-only audit store.
func (c *Container) AuditStore() *audit.Store { return c.auditStore }

// Categories returns the category repository.
func (c *Container) Categories() *repository.CategoryRepository { return c.categories }

// Products returns the product repository.
func (c *Container) Products() *repository.ProductRepository { return c.products }

// Links returns the link repository.
func (c *Container) Links() *repository.LinkRepository { return c.links }

// Marketplaces returns the marketplace repository.
func (c *Container) Marketplaces() *repository.MarketplaceRepository { return c.marketplaces }

// Badges returns the badge repository.
func (c *Container) Badges() *repository.BadgeRepository { return c.badges }

// ProductBadges returns the product-badge association repository.
func (c *Container) ProductBadges() *repository.ProductBadgeRepository { return c.productBdgs }

// Admins returns the admin repository.
func (c *Container) Admins() *repository.AdminRepository { return c.admins }
