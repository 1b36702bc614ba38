package pattern

import (
	"golang.org/x/text/language"
)

var monthAbbreviations = map[string][12]string{
	"en": {"Jan", "Feb", "Mar", "Apr", "May", "Jun", "Jul", "Aug", "Sep", "Oct", "Nov", "Dec"},
	"fr": {"janv.", "févr.", "mars", "avr.", "mai", "juin", "juil.", "août", "sept.", "oct.", "nov.", "déc."},
	"es": {"ene.", "feb.", "mar.", "abr.", "may.", "jun.", "jul.", "ago.", "sept.", "oct.", "nov.", "dic."},
	"de": {"Jan.", "Feb.", "März", "Apr.", "Mai", "Juni", "Juli", "Aug.", "Sept.", "Okt.", "Nov.", "Dez."},
	"it": {"gen", "feb", "mar", "apr", "mag", "giu", "lug", "ago", "set", "ott", "nov", "dic"},
	"pt": {"jan.", "fev.", "mar.", "abr.", "mai.", "jun.", "jul.", "ago.", "set.", "out.", "nov.", "dez."},
}

// monthNames 根据语言标签选择月份缩写，无法识别时使用英文
func monthNames(locale string) [12]string {
	if locale == "" {
		return monthAbbreviations["en"]
	}
	tag, err := language.Parse(locale)
	if err != nil {
		return monthAbbreviations["en"]
	}
	base, _ := tag.Base()
	if names, ok := monthAbbreviations[base.String()]; ok {
		return names
	}
	return monthAbbreviations["en"]
}
