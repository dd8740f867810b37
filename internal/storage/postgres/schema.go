package postgres

const schemaSQL = `
-- Download jobs, one row per submitted URL
CREATE TABLE IF NOT EXISTS jobs (
	id BIGSERIAL PRIMARY KEY,
	url TEXT NOT NULL,
	title TEXT NOT NULL DEFAULT '',
	thumbnail TEXT NOT NULL DEFAULT '',
	total_size BIGINT,
	status TEXT NOT NULL DEFAULT 'pending',
	progress INTEGER NOT NULL DEFAULT 0,
	speed TEXT NOT NULL DEFAULT '',
	eta TEXT NOT NULL DEFAULT '',
	created_at TIMESTAMPTZ NOT NULL,
	started_at TIMESTAMPTZ,
	finished_at TIMESTAMPTZ,
	error_message TEXT NOT NULL DEFAULT '',
	retries INTEGER NOT NULL DEFAULT 0,
	tag_id BIGINT
);

CREATE UNIQUE INDEX IF NOT EXISTS idx_jobs_url ON jobs(url);
CREATE INDEX IF NOT EXISTS idx_jobs_status_created ON jobs(status, created_at DESC);

CREATE TABLE IF NOT EXISTS tags (
	id BIGSERIAL PRIMARY KEY,
	name TEXT NOT NULL,
	value TEXT NOT NULL,
	usage TEXT NOT NULL,
	color TEXT NOT NULL DEFAULT '',
	priority INTEGER NOT NULL DEFAULT 0
);

CREATE TABLE IF NOT EXISTS strategies (
	id BIGSERIAL PRIMARY KEY,
	name TEXT NOT NULL,
	format TEXT NOT NULL DEFAULT '',
	merge_output_format TEXT NOT NULL DEFAULT '',
	embed_thumbnail BOOLEAN NOT NULL DEFAULT FALSE,
	extract_audio BOOLEAN NOT NULL DEFAULT FALSE,
	audio_format TEXT NOT NULL DEFAULT '',
	priority INTEGER NOT NULL DEFAULT 0,
	is_enabled BOOLEAN NOT NULL DEFAULT TRUE,
	is_default BOOLEAN NOT NULL DEFAULT FALSE
);
`
