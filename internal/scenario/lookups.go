package scenario

import (
	"os"
	"strconv"
	"strings"

	"github.com/brianvoe/gofakeit/v7"

	"github.com/wondertwin-ai/apicheck/internal/store"
)

// envLookup resolves {env.NAME} from the process environment. Unset
// variables are unresolved so that templates fail closed.
var envLookup = store.LookupFunc(func(key string) (string, bool) {
	name, ok := strings.CutPrefix(key, "env.")
	if !ok {
		return "", false
	}
	return os.LookupEnv(name)
})

// fakeFunctions maps {fake.<kind>} names to generators.
var fakeFunctions = map[string]func(*gofakeit.Faker) string{
	"username":  func(f *gofakeit.Faker) string { return strings.ToLower(f.Username()) },
	"name":      func(f *gofakeit.Faker) string { return f.Name() },
	"firstName": func(f *gofakeit.Faker) string { return f.FirstName() },
	"lastName":  func(f *gofakeit.Faker) string { return f.LastName() },
	"email":     func(f *gofakeit.Faker) string { return f.Email() },
	"phone":     func(f *gofakeit.Faker) string { return f.Phone() },
	"password":  func(f *gofakeit.Faker) string { return f.Password(true, true, true, false, false, 12) },
	"petName":   func(f *gofakeit.Faker) string { return f.PetName() },
	"uuid":      func(f *gofakeit.Faker) string { return f.UUID() },
	"word":      func(f *gofakeit.Faker) string { return f.Word() },
	"number":    func(f *gofakeit.Faker) string { return strconv.Itoa(f.Number(1, 1_000_000)) },
}

// fakeLookup resolves {fake.<kind>} with fresh random data on every call.
// A Faker is not safe for concurrent use, so each run builds its own.
func fakeLookup(f *gofakeit.Faker) store.Lookup {
	return store.LookupFunc(func(key string) (string, bool) {
		kind, ok := strings.CutPrefix(key, "fake.")
		if !ok {
			return "", false
		}
		fn, ok := fakeFunctions[kind]
		if !ok {
			return "", false
		}
		return fn(f), true
	})
}
