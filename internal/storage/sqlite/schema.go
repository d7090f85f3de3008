package sqlite

import "github.com/JakeFAU/gyik-crawler/internal/storage"

// Schema is the SQLite DDL for every table.
var Schema = storage.Schema{
	storage.TableKeyword: `CREATE TABLE IF NOT EXISTS KEYWORD (
	id      INTEGER PRIMARY KEY AUTOINCREMENT,
	keyword TEXT NOT NULL UNIQUE
)`,
	storage.TableUser: `CREATE TABLE IF NOT EXISTS "USER" (
	id           INTEGER PRIMARY KEY AUTOINCREMENT,
	user_name    TEXT UNIQUE,
	user_percent INTEGER
)`,
	storage.TableQuestion: `CREATE TABLE IF NOT EXISTS QUESTION (
	id          INTEGER PRIMARY KEY AUTOINCREMENT,
	external_id TEXT NOT NULL UNIQUE,
	category    TEXT NOT NULL,
	subcategory TEXT NOT NULL,
	title       TEXT NOT NULL,
	body        TEXT,
	posted_at   TIMESTAMP NOT NULL,
	url         TEXT NOT NULL,
	user_id     INTEGER REFERENCES "USER"(id),
	ingested_at TIMESTAMP NOT NULL
)`,
	storage.TableAnswer: `CREATE TABLE IF NOT EXISTS ANSWER (
	id             INTEGER PRIMARY KEY AUTOINCREMENT,
	user_id        INTEGER REFERENCES "USER"(id),
	external_id    TEXT NOT NULL,
	question_id    INTEGER NOT NULL REFERENCES QUESTION(id) ON DELETE CASCADE,
	posted_at      TIMESTAMP,
	body           TEXT,
	user_percent   INTEGER,
	answer_percent INTEGER,
	UNIQUE (question_id, external_id)
)`,
	storage.TableQuestionKeyword: `CREATE TABLE IF NOT EXISTS QUESTION_KEYWORD (
	keyword_id  INTEGER NOT NULL REFERENCES KEYWORD(id),
	question_id INTEGER NOT NULL REFERENCES QUESTION(id) ON DELETE CASCADE
)`,
}
