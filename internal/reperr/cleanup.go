package reperr

import "github.com/sirkon/errors"

// Cleanup набор шагов очистки. Выполняются все шаги, возвращается
// первая ошибка.
type Cleanup struct {
	steps []cleanupStep
}

type cleanupStep struct {
	name string
	fn   func() error
}

// Add регистрирует очередной шаг.
func (c *Cleanup) Add(name string, fn func() error) {
	c.steps = append(c.steps, cleanupStep{
		name: name,
		fn:   fn,
	})
}

// Run выполняет шаги в порядке добавления. Ошибка шага не прерывает
// остальные, первая из них возвращается обёрнутой именем шага.
func (c *Cleanup) Run() error {
	var first error
	for _, step := range c.steps {
		if err := step.fn(); err != nil && first == nil {
			first = errors.Wrap(err, step.name)
		}
	}
	c.steps = c.steps[:0]

	return first
}

// First возвращает первую ненулевую ошибку.
func First(errs ...error) error {
	for _, err := range errs {
		if err != nil {
			return err
		}
	}

	return nil
}
