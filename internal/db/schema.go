package db

// schemaSQL creates the tables the hub persists across restarts.
// Device profiles are the only durable state: sessions, playlists, and
// subscriptions are rebuilt from the network on startup.
const schemaSQL = `
CREATE TABLE IF NOT EXISTS device_profiles (
    profile_id        TEXT PRIMARY KEY,
    name              TEXT NOT NULL,
    friendly_name     TEXT,
    manufacturer      TEXT,
    manufacturer_url  TEXT,
    model_description TEXT,
    model_name        TEXT,
    model_number      TEXT,
    model_url         TEXT,
    serial_number     TEXT,
    requires_encoding INTEGER NOT NULL DEFAULT 0,
    supported_media   TEXT NOT NULL DEFAULT 'Audio,Video,Photo',
    protocol_info     TEXT,
    created_at        TEXT NOT NULL,
    updated_at        TEXT NOT NULL
);

CREATE INDEX IF NOT EXISTS idx_device_profiles_model
    ON device_profiles(model_name, manufacturer);
`
