package store

const schema = `
CREATE TABLE IF NOT EXISTS games (
    event_id      TEXT PRIMARY KEY,
    sport         TEXT NOT NULL,
    game_date     TEXT NOT NULL,
    away          TEXT NOT NULL DEFAULT '',
    home          TEXT NOT NULL DEFAULT '',
    network       TEXT NOT NULL DEFAULT '',
    wp_points     INTEGER NOT NULL DEFAULT 0,
    ei            REAL NOT NULL DEFAULT 0,
    score         INTEGER NOT NULL DEFAULT 0,
    vibe          TEXT NOT NULL DEFAULT '',
    auto_surface  BOOLEAN NOT NULL DEFAULT 0,
    delivered     BOOLEAN NOT NULL DEFAULT 0,
    scored_at     DATETIME NOT NULL
);

CREATE INDEX IF NOT EXISTS idx_games_sport_date ON games(sport, game_date);
CREATE INDEX IF NOT EXISTS idx_games_score ON games(score);

CREATE TABLE IF NOT EXISTS delivered (
    event_id      TEXT PRIMARY KEY,
    delivered_at  TEXT NOT NULL
);
`
