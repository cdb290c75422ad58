package auth

import "golang.org/x/crypto/bcrypt"

// PasswordHasher hashes plaintext passwords for storage.
type PasswordHasher interface {
	// Hash returns the hash of the given plaintext password.
	Hash(password string) (string, error)
}

// PasswordVerifier compares stored hashes with candidate passwords.
type PasswordVerifier interface {
	// Compare returns nil when the plaintext matches the hash.
	Compare(hashedPassword, password string) error
}

// BcryptPasswordService implements both PasswordHasher and
// PasswordVerifier using bcrypt.
type BcryptPasswordService struct {
	cost int
}

// NewBcryptPasswordService creates a password service with the given cost.
// Costs outside bcrypt's valid range fall back to the library default.
func NewBcryptPasswordService(cost int) *BcryptPasswordService {
	if cost < bcrypt.MinCost || cost > bcrypt.MaxCost {
		cost = bcrypt.DefaultCost
	}
	return &BcryptPasswordService{cost: cost}
}

var (
	_ PasswordHasher   = (*BcryptPasswordService)(nil)
	_ PasswordVerifier = (*BcryptPasswordService)(nil)
)

// Hash implements PasswordHasher.
func (s *BcryptPasswordService) Hash(password string) (string, error) {
	hash, err := bcrypt.GenerateFromPassword([]byte(password), s.cost)
	if err != nil {
		return "", err
	}
	return string(hash), nil
}

// Compare implements PasswordVerifier.
func (s *BcryptPasswordService) Compare(hashedPassword, password string) error {
	return bcrypt.CompareHashAndPassword([]byte(hashedPassword), []byte(password))
}
