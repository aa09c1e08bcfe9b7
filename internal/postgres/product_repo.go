package postgres

import (
	"context"
	"errors"

	"github.com/cwrk-planet/chat-service/internal/domain"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

// ProductRepository reads the catalog table owned by the marketplace.
type ProductRepository struct {
	q querier
}

func NewProductRepository(db *pgxpool.Pool) *ProductRepository {
	return &ProductRepository{q: db}
}

func (r *ProductRepository) GetProduct(ctx context.Context, id string) (domain.Product, error) {
	var p domain.Product
	err := r.q.QueryRow(ctx, qGetProduct, id).Scan(&p.ID, &p.SellerID, &p.Name)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return domain.Product{}, domain.ErrProductNotFound
		}
		return domain.Product{}, err
	}
	return p, nil
}

// PutProduct is used by fixtures and local seeding.
func (r *ProductRepository) PutProduct(ctx context.Context, p domain.Product) error {
	_, err := r.q.Exec(ctx, qUpsertProduct, p.ID, p.SellerID, p.Name)
	return err
}
