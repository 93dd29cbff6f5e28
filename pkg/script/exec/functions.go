package exec

import (
	stderrors "errors"
	"math"
	"strings"

	"golang.org/x/text/language"
	"golang.org/x/text/message"
	"golang.org/x/text/number"

	"github.com/vango-dev/smarthttp/internal/errors"
	"github.com/vango-dev/smarthttp/pkg/httpctx"
)

// DefaultFunctions returns a fresh table of the built-in functions.
func DefaultFunctions() map[string]Function {
	return map[string]Function{
		"sin":         {Arity: 1, Call: fnSin},
		"decfmt":      {Arity: 2, Call: fnDecfmt},
		"dup":         {Arity: 1, Call: fnDup},
		"swap":        {Arity: 2, Call: fnSwap},
		"setMimeType": {Arity: 1, Call: fnSetMimeType},

		"paramGet": {Arity: 2, Call: getter(func(rc *httpctx.RequestContext, k string) (string, bool) {
			return rc.Param(k)
		})},
		"pparamGet": {Arity: 2, Call: getter(func(rc *httpctx.RequestContext, k string) (string, bool) {
			return rc.PersistentParam(k)
		})},
		"tparamGet": {Arity: 2, Call: getter(func(rc *httpctx.RequestContext, k string) (string, bool) {
			return rc.TemporaryParam(k)
		})},

		"pparamSet": {Arity: 2, Call: setter((*httpctx.RequestContext).SetPersistentParam)},
		"tparamSet": {Arity: 2, Call: setter((*httpctx.RequestContext).SetTemporaryParam)},

		"pparamDel": {Arity: 1, Call: deleter((*httpctx.RequestContext).DeletePersistentParam)},
		"tparamDel": {Arity: 1, Call: deleter((*httpctx.RequestContext).DeleteTemporaryParam)},
	}
}

// fnSin takes degrees.
func fnSin(_ *httpctx.RequestContext, args []Value) ([]Value, error) {
	x, err := args[0].Float64()
	if err != nil {
		return nil, err
	}
	return []Value{Float(math.Sin(x * math.Pi / 180))}, nil
}

// fnDecfmt formats x (pushed first) with a pattern such as "0.00" or
// "#,##0.000" (pushed last).
func fnDecfmt(_ *httpctx.RequestContext, args []Value) ([]Value, error) {
	x, err := args[0].Float64()
	if err != nil {
		return nil, err
	}
	if args[1].Kind() != KindString {
		return nil, errors.New("E206").WithDetailf("@decfmt pattern must be a string, got %s", args[1].Kind())
	}
	return []Value{String(FormatDecimal(x, args[1].String()))}, nil
}

// FormatDecimal formats x using a decimal pattern. Zeros in the integer
// part set the minimum integer digits; zeros and hashes after the point set
// the minimum and maximum fraction digits; a comma enables grouping.
func FormatDecimal(x float64, pattern string) string {
	intPart, fracPart, _ := strings.Cut(pattern, ".")

	opts := []number.Option{
		number.MinIntegerDigits(strings.Count(intPart, "0")),
		number.MinFractionDigits(strings.Count(fracPart, "0")),
		number.MaxFractionDigits(strings.Count(fracPart, "0") + strings.Count(fracPart, "#")),
	}
	if !strings.Contains(intPart, ",") {
		opts = append(opts, number.NoSeparator())
	}

	p := message.NewPrinter(language.English)
	return p.Sprint(number.Decimal(x, opts...))
}

func fnDup(_ *httpctx.RequestContext, args []Value) ([]Value, error) {
	return []Value{args[0], args[0]}, nil
}

func fnSwap(_ *httpctx.RequestContext, args []Value) ([]Value, error) {
	return []Value{args[1], args[0]}, nil
}

func fnSetMimeType(rc *httpctx.RequestContext, args []Value) ([]Value, error) {
	if err := rc.SetMimeType(args[0].String()); err != nil {
		return nil, headerError(err)
	}
	return nil, nil
}

// getter pops a default (top) and a key, and pushes the stored value or
// the default.
func getter(get func(rc *httpctx.RequestContext, key string) (string, bool)) func(*httpctx.RequestContext, []Value) ([]Value, error) {
	return func(rc *httpctx.RequestContext, args []Value) ([]Value, error) {
		key, def := args[0], args[1]
		if v, ok := get(rc, key.String()); ok {
			return []Value{String(v)}, nil
		}
		return []Value{def}, nil
	}
}

// setter pops a key (top) and a value, and stores the value.
func setter(set func(rc *httpctx.RequestContext, key, value string)) func(*httpctx.RequestContext, []Value) ([]Value, error) {
	return func(rc *httpctx.RequestContext, args []Value) ([]Value, error) {
		value, key := args[0], args[1]
		set(rc, key.String(), value.String())
		return nil, nil
	}
}

func deleter(del func(rc *httpctx.RequestContext, key string)) func(*httpctx.RequestContext, []Value) ([]Value, error) {
	return func(rc *httpctx.RequestContext, args []Value) ([]Value, error) {
		del(rc, args[0].String())
		return nil, nil
	}
}

func headerError(err error) error {
	if stderrors.Is(err, httpctx.ErrHeaderSent) {
		return errors.New("E207").Wrap(err)
	}
	return errors.FromError(err, "E206")
}
