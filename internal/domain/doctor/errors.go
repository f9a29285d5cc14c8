package doctor

import "errors"

var (
	ErrDoctorNotFound    = errors.New("doctor not found")
	ErrDoctorInactive    = errors.New("doctor is not active")
	ErrServiceNotFound   = errors.New("hospital service not found")
	ErrServiceInactive   = errors.New("hospital service is not active")
	ErrSpecialtyNotFound = errors.New("specialty not found")
)
