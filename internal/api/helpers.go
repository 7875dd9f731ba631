package api

import (
	"github.com/wishlistapp/catalog-server/internal/domain"
	domainerrors "github.com/wishlistapp/catalog-server/internal/errors"
	"github.com/wishlistapp/catalog-server/internal/metadata"
)

// parseIdentifierParam validates an identifier path parameter.
func parseIdentifierParam(raw string) (domain.Identifier, error) {
	ident, err := domain.ParseIdentifier(raw)
	if err != nil {
		return "", domainerrors.Validationf("invalid product identifier %q", raw)
	}
	return ident, nil
}

func productURL(ident domain.Identifier) string {
	return metadata.ProductURL(ident)
}
