package crdb

// Schema is applied by deployments and tests. The partial unique index on
// tickets is what actually enforces the one-live-ticket-per-number
// invariant; application checks only exist to produce friendlier errors.
const Schema = `
CREATE TABLE IF NOT EXISTS raffles (
	id UUID PRIMARY KEY,
	owner_id UUID NOT NULL,
	max_tickets INT NOT NULL CHECK (max_tickets > 0),
	ticket_price NUMERIC NOT NULL CHECK (ticket_price > 0),
	sold_tickets INT NOT NULL DEFAULT 0 CHECK (sold_tickets >= 0 AND sold_tickets <= max_tickets),
	is_active BOOL NOT NULL DEFAULT true,
	end_date TIMESTAMPTZ NOT NULL,
	winner_id UUID,
	created_at TIMESTAMPTZ NOT NULL DEFAULT now()
);

CREATE TABLE IF NOT EXISTS tickets (
	id UUID PRIMARY KEY,
	raffle_id UUID NOT NULL REFERENCES raffles (id),
	number INT NOT NULL CHECK (number >= 1),
	owner_id UUID NOT NULL,
	status TEXT NOT NULL CHECK (status IN ('RESERVED', 'SOLD', 'WINNER', 'REFUNDED')),
	purchased_at TIMESTAMPTZ NOT NULL DEFAULT now(),
	buyer_document TEXT NOT NULL DEFAULT '',
	buyer_phone TEXT NOT NULL DEFAULT ''
);

CREATE UNIQUE INDEX IF NOT EXISTS tickets_live_number
	ON tickets (raffle_id, number) WHERE status != 'REFUNDED';

CREATE TABLE IF NOT EXISTS draws (
	raffle_id UUID PRIMARY KEY REFERENCES raffles (id),
	drawn_at TIMESTAMPTZ NOT NULL,
	total_participants INT NOT NULL,
	draw_number TEXT NOT NULL
);

CREATE TABLE IF NOT EXISTS draw_winners (
	raffle_id UUID NOT NULL REFERENCES draws (raffle_id),
	position INT NOT NULL,
	ticket_id UUID NOT NULL,
	ticket_number INT NOT NULL,
	buyer_id UUID NOT NULL,
	PRIMARY KEY (raffle_id, position)
);

CREATE TABLE IF NOT EXISTS outbox (
	id UUID PRIMARY KEY,
	aggregate_type TEXT NOT NULL,
	aggregate_id UUID NOT NULL,
	event_type TEXT NOT NULL,
	payload_json BYTES NOT NULL,
	created_at TIMESTAMPTZ NOT NULL DEFAULT now(),
	published_at TIMESTAMPTZ,
	status TEXT NOT NULL DEFAULT 'NEW',
	dedupe_key TEXT NOT NULL
);
`
