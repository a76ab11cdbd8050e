package testlog

import (
	"fmt"
	"sort"
	"strings"

	"github.com/sirkon/errors"
)

const (
	bold = "\033[1m"
	red  = "\033[1;31m"
)

// Log выводит ошибку вместе с её структурированным контекстом.
func Log(t TestingPrinter, err error) {
	t.Helper()
	t.Log(render(err, bold))
}

// Error сигнализирует об ошибке.
func Error(t TestingPrinter, err error) {
	t.Helper()
	t.Error(render(err, red))
}

// Fatal сигнализирует об ошибке и прерывает тест.
func Fatal(t TestingPrinter, err error) {
	t.Helper()
	t.Fatal(render(err, red))
}

// Check ничего не делает и возвращает false для пустой ошибки.
// Иначе сигнализирует о ней и возвращает true.
func Check(t TestingPrinter, err error) bool {
	if err == nil {
		return false
	}

	t.Helper()
	t.Error(render(err, red))
	return true
}

func render(err error, highlight string) string {
	if err == nil {
		return "<nil>"
	}

	var b strings.Builder
	b.WriteString(highlight)
	b.WriteString(err.Error())
	b.WriteString("\033[0m\n")

	d := errors.GetContextDeliverer(err)
	if d == nil {
		return b.String()
	}

	var c contextConsumer
	d.Deliver(&c)
	if len(c.vars) == 0 {
		return b.String()
	}

	sort.SliceStable(c.vars, func(i, j int) bool {
		return c.vars[i].name < c.vars[j].name
	})

	var maxname int
	for _, v := range c.vars {
		if len(v.name) > maxname {
			maxname = len(v.name)
		}
	}

	for _, v := range c.vars {
		b.WriteString("    \033[1m")
		b.WriteString(v.name)
		b.WriteString("\033[0m: ")
		b.WriteString(strings.Repeat(" ", maxname-len(v.name)))
		_, _ = fmt.Fprintln(&b, v.value)
	}

	return b.String()
}
