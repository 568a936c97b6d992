// passwd хэширует и проверяет пароли через bcrypt.
package passwd

import (
	"fmt"

	"golang.org/x/crypto/bcrypt"
)

// Bcrypt реализует хэширование паролей с заданной стоимостью.
type Bcrypt struct {
	cost int
}

// New создаёт хэшер; cost вне [bcrypt.MinCost, bcrypt.MaxCost] заменяется на DefaultCost.
func New(cost int) *Bcrypt {
	if cost < bcrypt.MinCost || cost > bcrypt.MaxCost {
		cost = bcrypt.DefaultCost
	}

	return &Bcrypt{cost: cost}
}

// Hash хэширует пароль.
func (b *Bcrypt) Hash(password string) (string, error) {
	const op = "passwd.Hash"

	bytes, err := bcrypt.GenerateFromPassword([]byte(password), b.cost)
	if err != nil {
		return "", fmt.Errorf("%s: %w", op, err)
	}

	return string(bytes), nil
}

// Verify сравнивает пароль с хэшем.
func (b *Bcrypt) Verify(hash, password string) bool {
	return bcrypt.CompareHashAndPassword([]byte(hash), []byte(password)) == nil
}
