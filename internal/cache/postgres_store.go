package cache

import (
	"context"
	"database/sql"
	"strings"

	"github.com/vetexchange/vetex/internal/trade"
)

// PostgresStore persists the listing index in PostgreSQL.
type PostgresStore struct {
	db *sql.DB
}

// NewPostgresStore creates a new PostgreSQL-backed cache store.
func NewPostgresStore(db *sql.DB) *PostgresStore {
	return &PostgresStore{db: db}
}

func (p *PostgresStore) UpsertListing(ctx context.Context, partition string, l *Listing) error {
	_, err := p.db.ExecContext(ctx, `
		INSERT INTO listings (
			partition, trade_id, seller, token, symbol, amount, decimals,
			fiat, fiat_amount, unit_price, seller_sns, status,
			tx_hash, block_number,
			created_at, updated_at
		) VALUES (
			$1, $2, $3, $4, $5, $6, $7,
			$8, $9, $10, $11, $12,
			$13, $14,
			NOW(), NOW()
		)
		ON CONFLICT (partition, trade_id) DO UPDATE SET
			seller = EXCLUDED.seller,
			token = EXCLUDED.token,
			symbol = EXCLUDED.symbol,
			amount = EXCLUDED.amount,
			decimals = EXCLUDED.decimals,
			fiat = EXCLUDED.fiat,
			fiat_amount = EXCLUDED.fiat_amount,
			unit_price = EXCLUDED.unit_price,
			seller_sns = EXCLUDED.seller_sns,
			status = EXCLUDED.status,
			tx_hash = EXCLUDED.tx_hash,
			block_number = EXCLUDED.block_number,
			updated_at = NOW()`,
		partition, l.TradeID, strings.ToLower(l.Seller), strings.ToLower(l.Token),
		l.Symbol, l.Amount, l.Decimals,
		uint8(l.Fiat), l.FiatAmount, l.UnitPrice, l.SellerSNS, uint8(l.Status),
		l.TxHash, l.BlockNumber,
	)
	return err
}

const listingColumns = `trade_id, seller, token, symbol, amount, decimals,
		       fiat, fiat_amount, unit_price, seller_sns, status,
		       tx_hash, block_number, created_at, updated_at`

func (p *PostgresStore) GetListing(ctx context.Context, partition string, tradeID uint64) (*Listing, error) {
	row := p.db.QueryRowContext(ctx,
		`SELECT `+listingColumns+` FROM listings WHERE partition = $1 AND trade_id = $2`,
		partition, tradeID)

	l, err := scanListing(row)
	if err == sql.ErrNoRows {
		return nil, ErrListingNotFound
	}
	return l, err
}

func (p *PostgresStore) ListListings(ctx context.Context, partition string, limit int) ([]*Listing, error) {
	rows, err := p.db.QueryContext(ctx, `
		SELECT `+listingColumns+`
		FROM listings
		WHERE partition = $1
		ORDER BY trade_id DESC
		LIMIT $2`, partition, limit)
	if err != nil {
		return nil, err
	}
	defer func() { _ = rows.Close() }()

	var result []*Listing
	for rows.Next() {
		l, err := scanListing(rows)
		if err != nil {
			return nil, err
		}
		result = append(result, l)
	}
	return result, rows.Err()
}

func (p *PostgresStore) UpdateListingStatus(ctx context.Context, partition string, tradeID uint64, status trade.Status) error {
	result, err := p.db.ExecContext(ctx, `
		UPDATE listings SET status = $1, updated_at = NOW()
		WHERE partition = $2 AND trade_id = $3`,
		uint8(status), partition, tradeID)
	if err != nil {
		return err
	}
	rows, err := result.RowsAffected()
	if err != nil {
		return err
	}
	if rows == 0 {
		return ErrListingNotFound
	}
	return nil
}

func (p *PostgresStore) UpsertProfile(ctx context.Context, prof *Profile) error {
	_, err := p.db.ExecContext(ctx, `
		INSERT INTO profiles (
			address, kakao_id, telegram_id, meet_place,
			kr_bank, kr_account, vn_bank, vn_account, updated_at
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, NOW())
		ON CONFLICT (address) DO UPDATE SET
			kakao_id = EXCLUDED.kakao_id,
			telegram_id = EXCLUDED.telegram_id,
			meet_place = EXCLUDED.meet_place,
			kr_bank = EXCLUDED.kr_bank,
			kr_account = EXCLUDED.kr_account,
			vn_bank = EXCLUDED.vn_bank,
			vn_account = EXCLUDED.vn_account,
			updated_at = NOW()`,
		strings.ToLower(prof.Address), prof.KakaoID, prof.TelegramID, prof.MeetPlace,
		prof.KRBank, prof.KRAccount, prof.VNBank, prof.VNAccount,
	)
	return err
}

func (p *PostgresStore) GetProfile(ctx context.Context, address string) (*Profile, error) {
	row := p.db.QueryRowContext(ctx, `
		SELECT address, kakao_id, telegram_id, meet_place,
		       kr_bank, kr_account, vn_bank, vn_account, updated_at
		FROM profiles WHERE address = $1`, strings.ToLower(address))

	prof := &Profile{}
	err := row.Scan(
		&prof.Address, &prof.KakaoID, &prof.TelegramID, &prof.MeetPlace,
		&prof.KRBank, &prof.KRAccount, &prof.VNBank, &prof.VNAccount, &prof.UpdatedAt,
	)
	if err == sql.ErrNoRows {
		return nil, ErrProfileNotFound
	}
	if err != nil {
		return nil, err
	}
	return prof, nil
}

func (p *PostgresStore) Ping(ctx context.Context) error {
	return p.db.PingContext(ctx)
}

func (p *PostgresStore) Close() error {
	return p.db.Close()
}

// scanner is satisfied by both *sql.Row and *sql.Rows.
type scanner interface {
	Scan(dest ...interface{}) error
}

func scanListing(s scanner) (*Listing, error) {
	l := &Listing{}
	var fiat, status uint8
	err := s.Scan(
		&l.TradeID, &l.Seller, &l.Token, &l.Symbol, &l.Amount, &l.Decimals,
		&fiat, &l.FiatAmount, &l.UnitPrice, &l.SellerSNS, &status,
		&l.TxHash, &l.BlockNumber, &l.CreatedAt, &l.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}
	l.Fiat = trade.FiatCurrency(fiat)
	l.Status = trade.Status(status)
	return l, nil
}

// Compile-time assertion that PostgresStore implements Store.
var _ Store = (*PostgresStore)(nil)
