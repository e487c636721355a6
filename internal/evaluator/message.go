package evaluator

import (
	"fmt"

	"stockeye-telegram-bot/internal/types"
	"stockeye-telegram-bot/lib/helpers"
	"stockeye-telegram-bot/lib/translation"
)

func renderTargetHit(a *types.PriceAlert, current float64) string {
	return fmt.Sprintf("🚨 <b>%s (%s)</b>\n%s: %s원\n%s: %s원",
		helpers.EscapeHTML(a.StockName), a.Symbol,
		translation.Translate("목표가 도달"), helpers.FormatPrice(*a.TargetPrice),
		translation.Translate("현재가"), helpers.FormatPrice(current))
}

func renderChangeHit(a *types.PriceAlert, rate, current float64) string {
	return fmt.Sprintf("🚨 <b>%s (%s)</b>\n%s %.1f%% %s %s\n%s: %s%%\n%s: %s원",
		helpers.EscapeHTML(a.StockName), a.Symbol,
		translation.Translate("변동률"), *a.ChangePercent, a.ChangeDirection, translation.Translate("도달"),
		translation.Translate("현재 변동률"), helpers.FormatPercent(rate),
		translation.Translate("현재가"), helpers.FormatPrice(current))
}
