package storage

const schema = `
-- The 'cards' table stores each flashcard and its review schedule.
-- difficulty may hold legacy 0-500 integers; readers normalize it.
CREATE TABLE IF NOT EXISTS cards (
    id TEXT PRIMARY KEY,
    deck TEXT NOT NULL DEFAULT '',
    question TEXT NOT NULL,
    answer TEXT NOT NULL DEFAULT '',
    context TEXT NOT NULL DEFAULT '',
    difficulty REAL NOT NULL DEFAULT 2.5,
    review_count INTEGER NOT NULL DEFAULT 0,
    correct_count INTEGER NOT NULL DEFAULT 0,
    next_review_date DATETIME NOT NULL,
    version INTEGER NOT NULL DEFAULT 0,
    source_id INTEGER,

    FOREIGN KEY(source_id) REFERENCES sources(id)
);

CREATE INDEX IF NOT EXISTS idx_cards_deck ON cards(deck);

-- The 'reviews' table is an append-only log of every response. A row with
-- reverts set records an undo of the row whose version it names.
CREATE TABLE IF NOT EXISTS reviews (
    id INTEGER PRIMARY KEY AUTOINCREMENT,
    card_id TEXT NOT NULL,
    was_correct INTEGER NOT NULL,
    response_time_ms INTEGER NOT NULL,
    difficulty REAL NOT NULL,
    next_review_date DATETIME NOT NULL,
    reviewed_at DATETIME NOT NULL,
    version INTEGER NOT NULL DEFAULT 0,
    reverts INTEGER NOT NULL DEFAULT 0
);

CREATE INDEX IF NOT EXISTS idx_reviews_card ON reviews(card_id);

-- The 'sources' table tracks where cards come from, either a local directory or a git repository.
CREATE TABLE IF NOT EXISTS sources (
    id INTEGER PRIMARY KEY AUTOINCREMENT,
    path TEXT NOT NULL UNIQUE,
    type TEXT NOT NULL DEFAULT 'local',
    last_scanned DATETIME
);

-- The 'starred' table holds cards marked for later review.
CREATE TABLE IF NOT EXISTS starred (
    card_id TEXT PRIMARY KEY,
    starred_at DATETIME NOT NULL
);
`
