package store

const schemaSQLite = `
CREATE TABLE IF NOT EXISTS inventory (
    id          INTEGER PRIMARY KEY AUTOINCREMENT,
    mpn         TEXT,
    category    TEXT NOT NULL,
    footprint   TEXT,
    value       REAL,
    location    TEXT,
    quantity    INTEGER,
    staged      INTEGER,
    comments    TEXT
);
CREATE INDEX IF NOT EXISTS idx_inventory_category ON inventory(category);
CREATE INDEX IF NOT EXISTS idx_inventory_footprint ON inventory(footprint);
CREATE INDEX IF NOT EXISTS idx_inventory_mpn ON inventory(mpn);

CREATE TABLE IF NOT EXISTS outbox (
    id          INTEGER PRIMARY KEY AUTOINCREMENT,
    topic       TEXT NOT NULL,
    payload     BLOB NOT NULL,
    msg_type    TEXT NOT NULL DEFAULT '',
    retries     INTEGER NOT NULL DEFAULT 0,
    created_at  TEXT NOT NULL DEFAULT (datetime('now','localtime')),
    sent_at     TEXT
);
CREATE INDEX IF NOT EXISTS idx_outbox_pending ON outbox(sent_at) WHERE sent_at IS NULL;
`
