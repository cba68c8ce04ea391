package postgres

// %s is the schema-qualified table name
const schemaSQL = `
CREATE TABLE IF NOT EXISTS %s (
	id TEXT PRIMARY KEY,
	name TEXT NOT NULL,
	name_kana TEXT NOT NULL DEFAULT '',
	slug TEXT NOT NULL,
	source_id TEXT NOT NULL,
	source_slug TEXT NOT NULL,
	manufacturer TEXT NOT NULL DEFAULT '',
	category TEXT NOT NULL DEFAULT '',
	target_species TEXT[] NOT NULL DEFAULT '{}',
	price INTEGER,
	length_mm DOUBLE PRECISION,
	weight_key TEXT NOT NULL DEFAULT '',
	weight_g DOUBLE PRECISION[],
	color_name TEXT NOT NULL DEFAULT '',
	color_description TEXT NOT NULL DEFAULT '',
	images TEXT[] NOT NULL DEFAULT '{}',
	description TEXT NOT NULL DEFAULT '',
	source_url TEXT NOT NULL,
	created_at TIMESTAMPTZ NOT NULL,
	updated_at TIMESTAMPTZ NOT NULL,
	UNIQUE (source_slug, source_url, color_name, weight_key)
)`
