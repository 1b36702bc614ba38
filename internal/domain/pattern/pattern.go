// Package pattern 把发票编号模板渲染成具体字符串。
//
// 模板语法：
//
//	dd.. mm.. yy.. nn..   当日/当月/当年/全局发票计数，按连续字符长度补零并截取低位
//	YYYY YY               四位/两位年份
//	MMM MM M              月份缩写（按语言）/补零月份/不补零月份
//	DD D                  补零日期/不补零日期
//	X[...]                线上支付时保留括号内文本，否则整体删除
//	R[...]                退款标记，目前始终删除
//	[...]                 其余方括号内的文本原样输出，不参与替换
package pattern

import (
	"strconv"
	"strings"
	"time"

	"invoicing/internal/domain/errs"

	"go.uber.org/zap"
)

// Counts 渲染时使用的计数
type Counts struct {
	Day    int64
	Month  int64
	Year   int64
	Global int64
}

// Anomaly 模板中无法解析的片段
type Anomaly struct {
	Offset   int    `json:"offset"`
	Fragment string `json:"fragment"`
	Reason   string `json:"reason"`
}

type Renderer struct {
	months [12]string
	logger *zap.Logger
}

type Option func(*Renderer)

// WithLocale 设置月份缩写使用的语言，例如 "fr"、"en-US"
func WithLocale(locale string) Option {
	return func(r *Renderer) {
		r.months = monthNames(locale)
	}
}

func WithLogger(logger *zap.Logger) Option {
	return func(r *Renderer) {
		r.logger = logger
	}
}

func NewRenderer(opts ...Option) *Renderer {
	r := &Renderer{
		months: monthNames(""),
		logger: zap.NewNop(),
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// Render 渲染模板。无法解析的片段原样保留并记录告警，不会中断开票。
func (r *Renderer) Render(pattern string, now time.Time, counts Counts, online bool) string {
	out, anomalies := r.render(pattern, now, counts, online)
	for _, a := range anomalies {
		r.logger.Warn(errs.ErrPatternSyntaxAnomaly.Error(),
			zap.String("pattern", pattern),
			zap.Int("offset", a.Offset),
			zap.String("fragment", a.Fragment),
			zap.String("reason", a.Reason),
		)
	}
	return out
}

// Check 返回模板中的异常片段，用于保存模板时提示运维
func (r *Renderer) Check(pattern string) []Anomaly {
	_, anomalies := r.render(pattern, time.Time{}, Counts{}, false)
	return anomalies
}

// render 单趟扫描。每个位置只匹配一次，替换产生的文本不会被再次匹配。
func (r *Renderer) render(pattern string, now time.Time, counts Counts, online bool) (string, []Anomaly) {
	src := []rune(pattern)
	var b strings.Builder
	var anomalies []Anomaly

	for i := 0; i < len(src); {
		ch := src[i]

		switch {
		case (ch == 'X' || ch == 'R') && i+1 < len(src) && src[i+1] == '[':
			end := closingBracket(src, i+2)
			if end < 0 {
				anomalies = append(anomalies, Anomaly{Offset: i, Fragment: string(src[i:]), Reason: "方括号未闭合"})
				b.WriteString(string(src[i:]))
				i = len(src)
				continue
			}
			if ch == 'X' && online {
				b.WriteString(string(src[i+2 : end]))
			}
			i = end + 1

		case ch == '[':
			end := closingBracket(src, i+1)
			if end < 0 {
				anomalies = append(anomalies, Anomaly{Offset: i, Fragment: string(src[i:]), Reason: "方括号未闭合"})
				b.WriteString(string(src[i:]))
				i = len(src)
				continue
			}
			b.WriteString(string(src[i : end+1]))
			i = end + 1

		case ch == ']':
			anomalies = append(anomalies, Anomaly{Offset: i, Fragment: "]", Reason: "多余的右方括号"})
			b.WriteRune(ch)
			i++

		case isCounter(ch):
			j := i
			for j < len(src) && src[j] == ch {
				j++
			}
			b.WriteString(padAndTruncate(counterValue(ch, counts), j-i))
			i = j

		default:
			if n, text := r.dateToken(src[i:], now); n > 0 {
				b.WriteString(text)
				i += n
				continue
			}
			b.WriteRune(ch)
			i++
		}
	}

	return b.String(), anomalies
}

// dateToken 按最长优先匹配日期占位符，返回消耗的字符数
func (r *Renderer) dateToken(src []rune, now time.Time) (int, string) {
	switch {
	case hasPrefix(src, "YYYY"):
		return 4, now.Format("2006")
	case hasPrefix(src, "YY"):
		return 2, now.Format("06")
	case hasPrefix(src, "MMM"):
		return 3, r.months[now.Month()-1]
	case hasPrefix(src, "MM"):
		return 2, now.Format("01")
	case hasPrefix(src, "M"):
		return 1, strconv.Itoa(int(now.Month()))
	case hasPrefix(src, "DD"):
		return 2, now.Format("02")
	case hasPrefix(src, "D"):
		return 1, strconv.Itoa(now.Day())
	}
	return 0, ""
}

func isCounter(ch rune) bool {
	return ch == 'd' || ch == 'm' || ch == 'y' || ch == 'n'
}

func counterValue(ch rune, c Counts) int64 {
	switch ch {
	case 'd':
		return c.Day
	case 'm':
		return c.Month
	case 'y':
		return c.Year
	default:
		return c.Global
	}
}

// padAndTruncate 左侧补零到 length 位，超长时只保留低位
func padAndTruncate(value int64, length int) string {
	s := strconv.FormatInt(value, 10)
	if len(s) < length {
		return strings.Repeat("0", length-len(s)) + s
	}
	return s[len(s)-length:]
}

func closingBracket(src []rune, from int) int {
	for j := from; j < len(src); j++ {
		if src[j] == ']' {
			return j
		}
	}
	return -1
}

func hasPrefix(src []rune, prefix string) bool {
	if len(src) < len(prefix) {
		return false
	}
	for i, p := range prefix {
		if src[i] != p {
			return false
		}
	}
	return true
}
