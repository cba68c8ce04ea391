package sqlite

const schemaSQL = `
-- One row per product x color x weight observation.
-- id is derived from the dedup key, so both constraints name the same row.
CREATE TABLE IF NOT EXISTS raw_records (
	id TEXT PRIMARY KEY,
	name TEXT NOT NULL,
	name_kana TEXT NOT NULL DEFAULT '',
	slug TEXT NOT NULL,
	source_id TEXT NOT NULL,
	source_slug TEXT NOT NULL,
	manufacturer TEXT NOT NULL DEFAULT '',
	category TEXT NOT NULL DEFAULT '',
	target_species TEXT NOT NULL DEFAULT '[]',
	price INTEGER,
	length_mm REAL,
	weight_key TEXT NOT NULL DEFAULT '',
	color_name TEXT NOT NULL DEFAULT '',
	color_description TEXT NOT NULL DEFAULT '',
	images TEXT NOT NULL DEFAULT '[]',
	description TEXT NOT NULL DEFAULT '',
	source_url TEXT NOT NULL,
	created_at INTEGER NOT NULL,
	updated_at INTEGER NOT NULL
);

CREATE UNIQUE INDEX IF NOT EXISTS idx_raw_records_dedup ON raw_records(source_slug, source_url, color_name, weight_key);
CREATE INDEX IF NOT EXISTS idx_raw_records_source_url ON raw_records(source_url);
CREATE INDEX IF NOT EXISTS idx_raw_records_source_slug ON raw_records(source_slug, id);
`
