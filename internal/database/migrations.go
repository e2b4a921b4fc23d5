package database

const schema = `
CREATE TABLE IF NOT EXISTS app_config (
    id INTEGER PRIMARY KEY CHECK (id = 1),
    damba_token TEXT NOT NULL DEFAULT '',
    token_expires_at INTEGER,
    alerts_snapshot TEXT NOT NULL DEFAULT '',
    map_center TEXT NOT NULL DEFAULT '',
    updated_at DATETIME DEFAULT CURRENT_TIMESTAMP
);

CREATE TABLE IF NOT EXISTS zones (
    id INTEGER PRIMARY KEY AUTOINCREMENT,
    zone_id TEXT NOT NULL UNIQUE,
    name TEXT NOT NULL,
    created_at DATETIME DEFAULT CURRENT_TIMESTAMP,
    updated_at DATETIME DEFAULT CURRENT_TIMESTAMP
);

CREATE TABLE IF NOT EXISTS group_settings (
    id INTEGER PRIMARY KEY AUTOINCREMENT,
    group_id TEXT NOT NULL UNIQUE,
    group_name TEXT NOT NULL,
    interval_minutes INTEGER NOT NULL DEFAULT 10,
    enabled BOOLEAN DEFAULT false,
    react_on_message TEXT NOT NULL DEFAULT '',
    should_alert BOOLEAN DEFAULT false,
    zone_ids TEXT NOT NULL DEFAULT '[]',
    created_at DATETIME DEFAULT CURRENT_TIMESTAMP,
    updated_at DATETIME DEFAULT CURRENT_TIMESTAMP
);

CREATE INDEX IF NOT EXISTS idx_group_settings_enabled ON group_settings(enabled);
CREATE INDEX IF NOT EXISTS idx_group_settings_alert ON group_settings(should_alert);
`
