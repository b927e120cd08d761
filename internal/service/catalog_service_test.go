package service

import (
	"context"
	"testing"

	"farm-market/internal/models"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCatalogHidesUnsellableProducts(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	visible := f.createProduct(t, "4.99", 10)
	empty := f.createProduct(t, "4.99", 0)
	archived := f.createProduct(t, "4.99", 10)
	_, err := f.products.ArchiveProduct(ctx, f.farmer.ID, archived.ID)
	require.NoError(t, err)

	page, err := f.catalog.Catalog(ctx, models.ProductFilter{})
	require.NoError(t, err)
	assert.Equal(t, 1, page.Total)
	require.Len(t, page.Products, 1)
	assert.Equal(t, visible.ID, page.Products[0].ID)
	assert.Equal(t, 1, page.TotalPages)

	_, err = f.catalog.Product(ctx, empty.ID)
	require.NoError(t, err, "out of stock products stay viewable")
}

func TestCatalogFilters(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	f.createProduct(t, "4.99", 10)
	honey, err := f.products.CreateProduct(ctx, f.farmer.ID, CreateProductInput{
		Name:        "Wildflower Honey",
		Category:    models.CategoryHoney,
		Description: "Raw and unfiltered",
		Price:       dec("12.00"),
		Unit:        models.UnitEach,
		Quantity:    8,
	})
	require.NoError(t, err)

	page, err := f.catalog.Catalog(ctx, models.ProductFilter{Category: models.CategoryHoney})
	require.NoError(t, err)
	require.Len(t, page.Products, 1)
	assert.Equal(t, honey.ID, page.Products[0].ID)

	page, err = f.catalog.Catalog(ctx, models.ProductFilter{Search: "wildflower"})
	require.NoError(t, err)
	require.Len(t, page.Products, 1)

	_, err = f.catalog.Catalog(ctx, models.ProductFilter{Category: "Toys"})
	requireKind(t, err, KindValidation)
}

func TestCatalogPaging(t *testing.T) {
	f := newFixture(t)
	for i := 0; i < 5; i++ {
		f.createProduct(t, "1.00", 3)
	}

	page, err := f.catalog.Catalog(context.Background(), models.ProductFilter{Page: 2, PageSize: 2})
	require.NoError(t, err)
	assert.Equal(t, 5, page.Total)
	assert.Equal(t, 3, page.TotalPages)
	assert.Len(t, page.Products, 2)

	page, err = f.catalog.Catalog(context.Background(), models.ProductFilter{PageSize: 1000})
	require.NoError(t, err)
	assert.Equal(t, maxPageSize, page.PageSize)
}

func TestCatalogProductDetail(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	tomatoes := f.createProduct(t, "4.99", 10)
	for i := 0; i < 5; i++ {
		f.createProduct(t, "2.00", 10)
	}

	detail, err := f.catalog.Product(ctx, tomatoes.ID)
	require.NoError(t, err)
	assert.Equal(t, tomatoes.ID, detail.Product.ID)
	assert.Len(t, detail.Related, relatedLimit)
	for _, r := range detail.Related {
		assert.NotEqual(t, tomatoes.ID, r.ID)
	}
	assert.Equal(t, models.CategoryVegetables, detail.Category.Value)

	_, err = f.catalog.Product(ctx, "missing")
	requireKind(t, err, KindNotFound)
}

func TestCatalogQuote(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	product := f.createProduct(t, "4.99", 10)

	q, err := f.catalog.Quote(ctx, product.ID, 3)
	require.NoError(t, err)
	assert.Equal(t, "4.99", q.EffectivePrice.StringFixed(2))
	assert.Nil(t, q.BulkTier)

	_, err = f.catalog.Quote(ctx, product.ID, 0)
	requireKind(t, err, KindValidation)
}

func TestCategories(t *testing.T) {
	f := newFixture(t)
	cats := f.catalog.Categories()
	assert.Len(t, cats, len(models.Categories))
	assert.Equal(t, models.CategoryVegetables, cats[0].Value)
}
