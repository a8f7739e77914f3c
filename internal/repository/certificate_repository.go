package repository

import (
	"errors"
	"lms_backend/internal/model"

	"gorm.io/gorm"
)

type CertificateRepository struct {
	DB *gorm.DB
}

func NewCertificateRepository(db *gorm.DB) *CertificateRepository {
	return &CertificateRepository{DB: db}
}

func (r *CertificateRepository) Find(studentID, courseID uint) (*model.Certificate, error) {
	var cert model.Certificate
	err := r.DB.Where("student_id = ? AND course_id = ?", studentID, courseID).
		First(&cert).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		return nil, err
	}
	return &cert, nil
}

func (r *CertificateRepository) Create(cert *model.Certificate) error {
	return r.DB.Create(cert).Error
}

func (r *CertificateRepository) ListByStudent(studentID uint) ([]model.Certificate, error) {
	var certs []model.Certificate
	err := r.DB.Where("student_id = ? AND is_active = ?", studentID, true).
		Order("created_at DESC").
		Find(&certs).Error
	return certs, err
}
