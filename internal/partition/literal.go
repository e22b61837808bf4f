package partition

import (
	"fmt"
	"strconv"
	"strings"
	"time"

	perrors "github.com/partwise/partwise/internal/errors"
)

// Literal is a partition bound value that can render itself as SQL literal
// text. Bounds are compared as text, so two literals denoting the same value
// with different spellings are different bounds.
type Literal interface {
	SQLLiteral() string
}

// Raw is literal text used verbatim, e.g. "'2024-01-01'" or "42".
type Raw string

func (r Raw) SQLLiteral() string { return string(r) }

// Text is a string value rendered single-quoted with embedded quotes doubled.
type Text string

func (t Text) SQLLiteral() string {
	return "'" + strings.ReplaceAll(string(t), "'", "''") + "'"
}

// Int is an integer bound.
type Int int64

func (i Int) SQLLiteral() string { return strconv.FormatInt(int64(i), 10) }

// Float is a numeric bound.
type Float float64

func (f Float) SQLLiteral() string { return strconv.FormatFloat(float64(f), 'f', -1, 64) }

// Date is rendered as 'YYYY-MM-DD'.
type Date time.Time

func (d Date) SQLLiteral() string { return "'" + time.Time(d).Format("2006-01-02") + "'" }

// Timestamp is rendered as 'YYYY-MM-DD HH:MM:SS[.ffffff]'.
type Timestamp time.Time

func (ts Timestamp) SQLLiteral() string {
	return "'" + time.Time(ts).Format("2006-01-02 15:04:05.999999") + "'"
}

type boundKeyword string

func (k boundKeyword) SQLLiteral() string { return string(k) }

// MinValue and MaxValue are the unbounded range markers.
const (
	MinValue boundKeyword = "MINVALUE"
	MaxValue boundKeyword = "MAXVALUE"
)

// FormatLiteral renders a Go value as SQL literal text. A time.Time at
// midnight is rendered as a date, any other time as a timestamp.
func FormatLiteral(v any) (string, error) {
	switch x := v.(type) {
	case Literal:
		return x.SQLLiteral(), nil
	case string:
		return Text(x).SQLLiteral(), nil
	case int:
		return Int(x).SQLLiteral(), nil
	case int32:
		return Int(x).SQLLiteral(), nil
	case int64:
		return Int(x).SQLLiteral(), nil
	case uint32:
		return Int(x).SQLLiteral(), nil
	case float32:
		return Float(x).SQLLiteral(), nil
	case float64:
		return Float(x).SQLLiteral(), nil
	case time.Time:
		if x.Hour() == 0 && x.Minute() == 0 && x.Second() == 0 && x.Nanosecond() == 0 {
			return Date(x).SQLLiteral(), nil
		}
		return Timestamp(x).SQLLiteral(), nil
	default:
		return "", perrors.NewValidationError(perrors.CodeInvalidLiteral,
			fmt.Sprintf("cannot format %T as a partition bound literal", v))
	}
}
