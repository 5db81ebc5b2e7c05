package store

const schemaPostgres = `
CREATE TABLE IF NOT EXISTS inventory (
    id          BIGSERIAL PRIMARY KEY,
    mpn         TEXT,
    category    TEXT NOT NULL,
    footprint   TEXT,
    value       DOUBLE PRECISION,
    location    TEXT,
    quantity    BIGINT,
    staged      BIGINT,
    comments    TEXT
);
CREATE INDEX IF NOT EXISTS idx_inventory_category ON inventory(category);
CREATE INDEX IF NOT EXISTS idx_inventory_footprint ON inventory(footprint);
CREATE INDEX IF NOT EXISTS idx_inventory_mpn ON inventory(mpn);

CREATE TABLE IF NOT EXISTS outbox (
    id          BIGSERIAL PRIMARY KEY,
    topic       TEXT NOT NULL,
    payload     BYTEA NOT NULL,
    msg_type    TEXT NOT NULL DEFAULT '',
    retries     INTEGER NOT NULL DEFAULT 0,
    created_at  TIMESTAMPTZ NOT NULL DEFAULT NOW(),
    sent_at     TIMESTAMPTZ
);
CREATE INDEX IF NOT EXISTS idx_outbox_pending ON outbox(sent_at) WHERE sent_at IS NULL;
`
