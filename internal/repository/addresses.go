package repository

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/kestrelcommerce/kestrel/internal/domain"
)

const addressColumns = `id, customer_id, full_name, phone, address_line1, address_line2,
	city, state, postal_code, country, is_default, created_at`

func scanSavedAddress(row rowScanner) (*domain.SavedAddress, error) {
	var a domain.SavedAddress
	err := row.Scan(
		&a.ID, &a.CustomerID,
		&a.Address.FullName, &a.Address.Phone,
		&a.Address.AddressLine1, &a.Address.AddressLine2,
		&a.Address.City, &a.Address.State,
		&a.Address.PostalCode, &a.Address.Country,
		&a.IsDefault, &a.CreatedAt,
	)
	if err != nil {
		return nil, err
	}
	return &a, nil
}

// GetSavedAddress retrieves a stored customer address.
func (s *PostgresStore) GetSavedAddress(ctx context.Context, id uuid.UUID) (*domain.SavedAddress, error) {
	row := s.pool.QueryRow(ctx, `SELECT `+addressColumns+` FROM saved_addresses WHERE id = $1`, id)

	addr, err := scanSavedAddress(row)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, domain.NotFound("address.get", "address", id.String())
		}
		return nil, fmt.Errorf("get saved address: %w", err)
	}
	return addr, nil
}

// CreateSavedAddress persists a fresh address for later reuse.
func (s *PostgresStore) CreateSavedAddress(ctx context.Context, addr domain.SavedAddress) (*domain.SavedAddress, error) {
	if addr.ID == uuid.Nil {
		addr.ID = uuid.New()
	}
	if addr.CreatedAt.IsZero() {
		addr.CreatedAt = time.Now().UTC()
	}

	_, err := s.pool.Exec(ctx, `
		INSERT INTO saved_addresses (
			id, customer_id, full_name, phone, address_line1, address_line2,
			city, state, postal_code, country, is_default, created_at
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12)`,
		addr.ID, addr.CustomerID,
		addr.Address.FullName, addr.Address.Phone,
		addr.Address.AddressLine1, addr.Address.AddressLine2,
		addr.Address.City, addr.Address.State,
		addr.Address.PostalCode, addr.Address.Country,
		addr.IsDefault, addr.CreatedAt,
	)
	if err != nil {
		return nil, fmt.Errorf("insert saved address: %w", err)
	}
	return &addr, nil
}
