package postgres

import "github.com/JakeFAU/gyik-crawler/internal/storage"

// Schema is the Postgres DDL for every table. USER is a reserved word and is
// always quoted.
var Schema = storage.Schema{
	storage.TableKeyword: `CREATE TABLE IF NOT EXISTS keyword (
	id      BIGSERIAL PRIMARY KEY,
	keyword TEXT NOT NULL UNIQUE
)`,
	storage.TableUser: `CREATE TABLE IF NOT EXISTS "user" (
	id           BIGSERIAL PRIMARY KEY,
	user_name    TEXT UNIQUE,
	user_percent INTEGER
)`,
	storage.TableQuestion: `CREATE TABLE IF NOT EXISTS question (
	id          BIGSERIAL PRIMARY KEY,
	external_id TEXT NOT NULL UNIQUE,
	category    TEXT NOT NULL,
	subcategory TEXT NOT NULL,
	title       TEXT NOT NULL,
	body        TEXT,
	posted_at   TIMESTAMPTZ NOT NULL,
	url         TEXT NOT NULL,
	user_id     BIGINT REFERENCES "user"(id),
	ingested_at TIMESTAMPTZ NOT NULL
)`,
	storage.TableAnswer: `CREATE TABLE IF NOT EXISTS answer (
	id             BIGSERIAL PRIMARY KEY,
	user_id        BIGINT REFERENCES "user"(id),
	external_id    TEXT NOT NULL,
	question_id    BIGINT NOT NULL REFERENCES question(id) ON DELETE CASCADE,
	posted_at      TIMESTAMPTZ,
	body           TEXT,
	user_percent   INTEGER,
	answer_percent INTEGER,
	UNIQUE (question_id, external_id)
)`,
	storage.TableQuestionKeyword: `CREATE TABLE IF NOT EXISTS question_keyword (
	keyword_id  BIGINT NOT NULL REFERENCES keyword(id),
	question_id BIGINT NOT NULL REFERENCES question(id) ON DELETE CASCADE
)`,
}
