package service

import (
	"github.com/xiaot623/stockpilot/internal/domain"
)

// StoreImage saves an uploaded screenshot and returns its public URL.
func (s *Service) StoreImage(dataURI string) (string, error) {
	return s.images.Save(dataURI)
}

// LoadImage reads a stored screenshot back as a data URI. A missing file is
// an input error.
func (s *Service) LoadImage(ref string) (string, error) {
	uri, err := s.images.LoadDataURI(ref)
	if err != nil {
		return "", domain.NewInputError("%s", err.Error())
	}
	return uri, nil
}
