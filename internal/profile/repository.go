package profile

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/jellydator/ttlcache/v3"

	"github.com/strefethen/dlna-hub-go/internal/db"
)

// ErrProfileNotFound indicates no stored profile carries the id.
var ErrProfileNotFound = errors.New("profile not found")

const cacheTTL = 10 * time.Minute

// Repository resolves and stores device profiles. User profiles live in
// sqlite and win over the embedded built-ins; resolved lookups are cached
// because every session creation and refresh asks again.
type Repository struct {
	pair     *db.Pair
	logger   *log.Logger
	builtIns []*DeviceProfile
	cache    *ttlcache.Cache[string, *DeviceProfile]
}

// NewRepository builds a Repository over an initialized database.
func NewRepository(pair *db.Pair, logger *log.Logger) (*Repository, error) {
	if logger == nil {
		logger = log.Default()
	}
	builtIns, err := loadBuiltIns()
	if err != nil {
		return nil, err
	}

	cache := ttlcache.New[string, *DeviceProfile](
		ttlcache.WithTTL[string, *DeviceProfile](cacheTTL),
	)
	go cache.Start()

	return &Repository{
		pair:     pair,
		logger:   logger,
		builtIns: builtIns,
		cache:    cache,
	}, nil
}

// Close stops the cache janitor.
func (r *Repository) Close() {
	r.cache.Stop()
}

// BuiltIns returns copies of the embedded default profiles.
func (r *Repository) BuiltIns() []*DeviceProfile {
	out := make([]*DeviceProfile, 0, len(r.builtIns))
	for _, p := range r.builtIns {
		copied := *p
		out = append(out, &copied)
	}
	return out
}

// GetProfile resolves the profile for a device. User profiles are consulted
// first, then built-ins. An unmatched device gets a profile seeded from its
// identity and the sink protocol info its ConnectionManager reported; with
// autoCreate set that generated profile is persisted, otherwise it stays
// transient.
func (r *Repository) GetProfile(ctx context.Context, info DeviceInfo, protocolInfo string, autoCreate bool) (*DeviceProfile, error) {
	key := info.signature()
	if item := r.cache.Get(key); item != nil {
		return item.Value(), nil
	}

	stored, err := r.List(ctx)
	if err != nil {
		return nil, err
	}
	for _, p := range stored {
		if p.Matches(info) {
			r.cache.Set(key, p, ttlcache.DefaultTTL)
			return p, nil
		}
	}
	for _, p := range r.builtIns {
		if p.Matches(info) {
			r.cache.Set(key, p, ttlcache.DefaultTTL)
			return p, nil
		}
	}

	created := &DeviceProfile{
		ID:   uuid.NewString(),
		Name: info.FriendlyName,
		Identification: Identification{
			FriendlyName: info.FriendlyName,
			Manufacturer: info.Manufacturer,
			ModelName:    info.ModelName,
		},
		SupportedMediaTypes: []string{"Audio", "Video", "Photo"},
		ProtocolInfo:        protocolInfo,
	}
	if created.Name == "" {
		created.Name = "Generic Device"
	}
	if autoCreate {
		if err := r.Save(ctx, created); err != nil {
			return nil, err
		}
		r.logger.Printf("PROFILE: created profile %q for %s", created.Name, info.FriendlyName)
	}
	r.cache.Set(key, created, ttlcache.DefaultTTL)
	return created, nil
}

// Evict drops a cached resolution, forcing the next lookup to re-match.
func (r *Repository) Evict(info DeviceInfo) {
	r.cache.Delete(info.signature())
}

// List returns all stored profiles, newest first.
func (r *Repository) List(ctx context.Context) ([]*DeviceProfile, error) {
	rows, err := r.pair.Reader().QueryContext(ctx, `
		SELECT profile_id, name, friendly_name, manufacturer, manufacturer_url,
		       model_description, model_name, model_number, model_url,
		       serial_number, requires_encoding, supported_media, protocol_info,
		       created_at, updated_at
		FROM device_profiles
		ORDER BY created_at DESC`)
	if err != nil {
		return nil, fmt.Errorf("list profiles: %w", err)
	}
	defer rows.Close()

	var profiles []*DeviceProfile
	for rows.Next() {
		p, err := scanProfile(rows)
		if err != nil {
			return nil, err
		}
		profiles = append(profiles, p)
	}
	return profiles, rows.Err()
}

// Get returns one stored profile by id.
func (r *Repository) Get(ctx context.Context, id string) (*DeviceProfile, error) {
	row := r.pair.Reader().QueryRowContext(ctx, `
		SELECT profile_id, name, friendly_name, manufacturer, manufacturer_url,
		       model_description, model_name, model_number, model_url,
		       serial_number, requires_encoding, supported_media, protocol_info,
		       created_at, updated_at
		FROM device_profiles
		WHERE profile_id = ?`, id)
	p, err := scanProfile(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrProfileNotFound
	}
	return p, err
}

// Save upserts a profile.
func (r *Repository) Save(ctx context.Context, p *DeviceProfile) error {
	now := time.Now().UTC()
	if p.ID == "" {
		p.ID = uuid.NewString()
	}
	if p.CreatedAt.IsZero() {
		p.CreatedAt = now
	}
	p.UpdatedAt = now

	_, err := r.pair.Writer().ExecContext(ctx, `
		INSERT INTO device_profiles (
			profile_id, name, friendly_name, manufacturer, manufacturer_url,
			model_description, model_name, model_number, model_url,
			serial_number, requires_encoding, supported_media, protocol_info,
			created_at, updated_at
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(profile_id) DO UPDATE SET
			name = excluded.name,
			friendly_name = excluded.friendly_name,
			manufacturer = excluded.manufacturer,
			manufacturer_url = excluded.manufacturer_url,
			model_description = excluded.model_description,
			model_name = excluded.model_name,
			model_number = excluded.model_number,
			model_url = excluded.model_url,
			serial_number = excluded.serial_number,
			requires_encoding = excluded.requires_encoding,
			supported_media = excluded.supported_media,
			protocol_info = excluded.protocol_info,
			updated_at = excluded.updated_at`,
		p.ID, p.Name,
		p.Identification.FriendlyName, p.Identification.Manufacturer,
		p.Identification.ManufacturerURL, p.Identification.ModelDescription,
		p.Identification.ModelName, p.Identification.ModelNumber,
		p.Identification.ModelURL, p.Identification.SerialNumber,
		boolToInt(p.RequiresEncoding), strings.Join(p.SupportedMediaTypes, ","),
		p.ProtocolInfo,
		p.CreatedAt.Format(time.RFC3339), p.UpdatedAt.Format(time.RFC3339))
	if err != nil {
		return fmt.Errorf("save profile: %w", err)
	}

	r.cache.DeleteAll()
	return nil
}

// DeleteProfile removes a stored profile and purges cached resolutions.
func (r *Repository) DeleteProfile(ctx context.Context, id string) error {
	result, err := r.pair.Writer().ExecContext(ctx,
		`DELETE FROM device_profiles WHERE profile_id = ?`, id)
	if err != nil {
		return fmt.Errorf("delete profile: %w", err)
	}
	affected, _ := result.RowsAffected()
	if affected == 0 {
		return ErrProfileNotFound
	}
	r.cache.DeleteAll()
	return nil
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanProfile(row rowScanner) (*DeviceProfile, error) {
	var (
		p                    DeviceProfile
		requiresEncoding     int
		supportedMedia       string
		createdAt, updatedAt string
	)
	err := row.Scan(
		&p.ID, &p.Name,
		&p.Identification.FriendlyName, &p.Identification.Manufacturer,
		&p.Identification.ManufacturerURL, &p.Identification.ModelDescription,
		&p.Identification.ModelName, &p.Identification.ModelNumber,
		&p.Identification.ModelURL, &p.Identification.SerialNumber,
		&requiresEncoding, &supportedMedia, &p.ProtocolInfo,
		&createdAt, &updatedAt,
	)
	if err != nil {
		return nil, err
	}
	p.RequiresEncoding = requiresEncoding != 0
	if supportedMedia != "" {
		p.SupportedMediaTypes = strings.Split(supportedMedia, ",")
	}
	p.CreatedAt, _ = time.Parse(time.RFC3339, createdAt)
	p.UpdatedAt, _ = time.Parse(time.RFC3339, updatedAt)
	return &p, nil
}

func boolToInt(b bool) int {
	if b {
		return 1
	}
	return 0
}
