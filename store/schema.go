package store

// Schema contains the DDL for the analysis and statistics tables.
const Schema = `
-- One analysis per domain; a newer pass replaces the row.
CREATE TABLE IF NOT EXISTS analyses (
    domain           TEXT PRIMARY KEY,
    id               TEXT NOT NULL,
    url              TEXT NOT NULL,
    score            TEXT NOT NULL,
    total_cookies    INTEGER NOT NULL DEFAULT 0,
    tracking_cookies INTEGER NOT NULL DEFAULT 0,
    tracking_scripts INTEGER NOT NULL DEFAULT 0,
    data             TEXT NOT NULL,
    created_at       INTEGER NOT NULL
);
CREATE INDEX IF NOT EXISTS idx_analyses_created ON analyses(created_at);

-- Monotonic counters (sitesAnalyzed, cookiesBlocked, ...).
CREATE TABLE IF NOT EXISTS stats (
    name       TEXT PRIMARY KEY,
    value      INTEGER NOT NULL DEFAULT 0,
    updated_at INTEGER NOT NULL
);
`
