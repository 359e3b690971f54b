package tradejournal

const schema = `
CREATE TABLE IF NOT EXISTS trades (
	id TEXT PRIMARY KEY,
	scope TEXT NOT NULL,
	ref TEXT NOT NULL,
	asset TEXT NOT NULL,
	partial INTEGER NOT NULL,
	amount TEXT NOT NULL,
	entry_price TEXT NOT NULL,
	exit_price TEXT NOT NULL,
	pnl TEXT NOT NULL,
	duration_days TEXT NOT NULL,
	seq INTEGER NOT NULL,
	closed_at DATETIME NOT NULL
);

CREATE UNIQUE INDEX IF NOT EXISTS idx_trades_scope_ref ON trades(scope, ref);
CREATE INDEX IF NOT EXISTS idx_trades_closed_at ON trades(scope, closed_at);
`
