package application

import (
	"context"
	"log/slog"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"

	"github.com/dmehra2102/shopeasy/internal/catalog/domain"
)

type Service struct {
	log    *slog.Logger
	repo   Repository
	cache  Cache
	images ImageStore
	tracer trace.Tracer
}

func NewService(log *slog.Logger, repo Repository, cache Cache, images ImageStore) *Service {
	return &Service{
		log:    log,
		repo:   repo,
		cache:  cache,
		images: images,
		tracer: otel.Tracer("catalog-service"),
	}
}

// List returns every product, newest first. Cache failures degrade to a
// database read.
func (s *Service) List(ctx context.Context) ([]domain.Product, error) {
	ctx, span := s.tracer.Start(ctx, "catalog.List")
	defer span.End()

	if products, ok, err := s.cache.Products(ctx); err != nil {
		s.log.WarnContext(ctx, "catalog cache read failed", "err", err)
	} else if ok {
		span.SetAttributes(attribute.Bool("cache.hit", true))
		return products, nil
	}

	products, err := s.repo.List(ctx)
	if err != nil {
		return nil, err
	}
	if err := s.cache.SetProducts(ctx, products); err != nil {
		s.log.WarnContext(ctx, "catalog cache write failed", "err", err)
	}
	return products, nil
}

func (s *Service) Get(ctx context.Context, id int64) (domain.Product, error) {
	ctx, span := s.tracer.Start(ctx, "catalog.Get", trace.WithAttributes(attribute.Int64("product.id", id)))
	defer span.End()

	if p, ok, err := s.cache.Product(ctx, id); err != nil {
		s.log.WarnContext(ctx, "catalog cache read failed", "product_id", id, "err", err)
	} else if ok {
		span.SetAttributes(attribute.Bool("cache.hit", true))
		return p, nil
	}

	p, err := s.repo.Get(ctx, id)
	if err != nil {
		return domain.Product{}, err
	}
	if err := s.cache.SetProduct(ctx, p); err != nil {
		s.log.WarnContext(ctx, "catalog cache write failed", "product_id", id, "err", err)
	}
	return p, nil
}

// Create validates and stores a product. When img is non-nil the image is
// stored first and removed again if the insert fails.
func (s *Service) Create(ctx context.Context, np domain.NewProduct, img *Upload) (domain.Product, error) {
	ctx, span := s.tracer.Start(ctx, "catalog.Create")
	defer span.End()

	if err := np.Validate(); err != nil {
		return domain.Product{}, err
	}
	if img != nil {
		if _, err := domain.ValidateImage(img.Filename, img.Size); err != nil {
			return domain.Product{}, err
		}
		name, err := s.images.Save(ctx, img.Filename, img.Body)
		if err != nil {
			return domain.Product{}, err
		}
		np.Image = name
	}

	p, err := s.repo.Create(ctx, np)
	if err != nil {
		if img != nil {
			if rmErr := s.images.Remove(ctx, np.Image); rmErr != nil {
				s.log.WarnContext(ctx, "orphan image cleanup failed", "image", np.Image, "err", rmErr)
			}
		}
		return domain.Product{}, err
	}
	s.invalidate(ctx)
	s.log.InfoContext(ctx, "product created", "product_id", p.ID, "name", p.Name)
	return p, nil
}

// Delete removes a product. Order items referencing it go with it.
func (s *Service) Delete(ctx context.Context, id int64) error {
	ctx, span := s.tracer.Start(ctx, "catalog.Delete", trace.WithAttributes(attribute.Int64("product.id", id)))
	defer span.End()

	p, err := s.repo.Delete(ctx, id)
	if err != nil {
		return err
	}
	if p.Image != "" {
		if err := s.images.Remove(ctx, p.Image); err != nil {
			s.log.WarnContext(ctx, "image removal failed", "image", p.Image, "err", err)
		}
	}
	s.invalidate(ctx, id)
	s.log.InfoContext(ctx, "product deleted", "product_id", id)
	return nil
}

// Invalidate drops cached entries for ids and the cached list.
func (s *Service) Invalidate(ctx context.Context, ids ...int64) error {
	return s.cache.Invalidate(ctx, ids...)
}

func (s *Service) invalidate(ctx context.Context, ids ...int64) {
	if err := s.cache.Invalidate(ctx, ids...); err != nil {
		s.log.WarnContext(ctx, "catalog cache invalidation failed", "err", err)
	}
}
