package ingestor

import (
	"fmt"
	"strings"

	"stockeye-telegram-bot/internal/dart"
	"stockeye-telegram-bot/internal/types"
	"stockeye-telegram-bot/lib/helpers"
	"stockeye-telegram-bot/lib/translation"
)

func renderDisclosures(ws types.WatchedStock, items []dart.Disclosure) string {
	var sb strings.Builder
	fmt.Fprintf(&sb, "📢 <b>%s (%s)</b> %s\n",
		helpers.EscapeHTML(ws.Name), ws.Symbol, translation.Translate("신규 공시"))
	for _, it := range items {
		fmt.Fprintf(&sb, "• <a href=\"%s\">%s</a> (%s)\n",
			it.ViewerURL(), helpers.EscapeHTML(it.ReportName),
			helpers.FormatReceipt(it.RceptDate, it.RceptTime))
	}
	return strings.TrimRight(sb.String(), "\n")
}

func renderNoDisclosures(ws types.WatchedStock) string {
	return fmt.Sprintf("ℹ️ <b>%s (%s)</b>\n%s",
		helpers.EscapeHTML(ws.Name), ws.Symbol,
		translation.Translate("현재 등록된 공시가 없습니다."))
}
