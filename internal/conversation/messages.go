package conversation

import (
	"fmt"

	"github.com/hitoshi/astropulse/internal/model"
)

// languageMenu は言語未確定のため両言語を併記する。
const languageMenu = "🌐 Choose your language:\n1. English\n2. മലയാളം"

const invalidLanguageChoice = "❌ Invalid choice. Please enter 1 or 2."

// catalog は1言語分の送信文面。
type catalog struct {
	welcome         string
	comingSoon      string
	invalidChoice   string
	zodiacMenu      string
	zodiacRange     string
	yearPrompt      string
	invalidYear     string
	categoryMenu    string
	categoryRange   string
	invalidInput    string
	sessionError    string
	predictionError string
	renderError     string
	sendError       string
	farewell        string
	captionFormat   string // カテゴリ名, 年
}

var english = &catalog{
	welcome: "🌟 Welcome to Astro Pulse! 🌟\n\n" +
		"Unlock the secrets of the stars with our cosmic insights!\n" +
		"What would you like to know?\n" +
		"1. Yearly Horoscope\n" +
		"2. Weekly Horoscope (Coming Soon!)\n\n" +
		"Enter the number of your choice:",
	comingSoon:    "❌ Weekly Horoscope is coming soon! Please choose 1 for Yearly Horoscope.",
	invalidChoice: "❌ Invalid choice. Please enter 1 or 2.",
	zodiacMenu: "Choose your Zodiac sign number:\n" +
		"1: Aries\n2: Taurus\n3: Gemini\n4: Cancer\n" +
		"5: Leo\n6: Virgo\n7: Libra\n8: Scorpio\n" +
		"9: Sagittarius\n10: Capricorn\n11: Aquarius\n12: Pisces\n\n" +
		"Enter the number:",
	zodiacRange: "❌ Invalid choice. Please enter a number between 1 and 12.",
	yearPrompt:  "✅ Got it! Now enter the year (e.g., 2025):",
	invalidYear: "❌ Please enter a valid year.",
	categoryMenu: "Choose the category for your prediction:\n" +
		"1. Health\n2. Physique\n3. Relationship\n4. Career\n" +
		"5. Travel\n6. Family\n7. Friends\n8. Finances\n9. Status\n\n" +
		"Enter the number:",
	categoryRange:   "❌ Invalid choice. Please enter a number between 1 and 9.",
	invalidInput:    "❌ Invalid input. Please send 'hi' to start over.",
	sessionError:    "⚠️ Session error. Please start again by sending 'hi'.",
	predictionError: "❌ Sorry, could not retrieve your prediction. Please try again later.",
	renderError:     "❌ Error creating PDF. Please try again later.",
	sendError:       "❌ Error sending PDF. Please try again later.",
	farewell:        "🌟 Your chat has ended. Send 'hi' or 'hello' to restart the conversation.",
	captionFormat:   "✅ Your %s Prediction for %s is ready. Please download the PDF below.",
}

var malayalam = &catalog{
	welcome: "🌟 ആസ്ട്രോ പൾസിലേക്ക് സ്വാഗതം! 🌟\n\n" +
		"നക്ഷത്രങ്ങളുടെ രഹസ്യങ്ങൾ തുറന്ന് കാണാം!\n" +
		"താങ്കൾക്ക് എന്താണ് അറിയാൻ ആഗ്രഹിക്കുന്നത്?\n" +
		"1. വാർഷിക ജാതകം\n" +
		"2. ആഴ്ച്ചവാര ജാതകം (വേഗം വരുന്നു!)\n\n" +
		"താങ്കളുടെ തിരഞ്ഞെടുപ്പ് നമ്പർ നൽകുക:",
	comingSoon:    "❌ ആഴ്ച്ചവാര ജാതകം വേഗം വരുന്നു! ദയവായി 1 തിരഞ്ഞെടുക്കുക വാർഷിക ജാതകത്തിനായി.",
	invalidChoice: "❌ തെറ്റായ തിരഞ്ഞെടുപ്പ്. ദയവായി 1 അല്ലെങ്കിൽ 2 നൽകുക.",
	zodiacMenu: "താങ്കളുടെ രാശി തിരഞ്ഞെടുക്കുക (നമ്പർ നൽകുക):\n" +
		"1: മേടം (Aries)\n2: ഇടവം (Taurus)\n3: മിഥുനം (Gemini)\n4: കർക്കിടകം (Cancer)\n" +
		"5: ചിങ്ങം (Leo)\n6: കന്നി (Virgo)\n7: തുലാം (Libra)\n8: വൃശ്ചികം (Scorpio)\n" +
		"9: ധനു (Sagittarius)\n10: മകരം (Capricorn)\n11: കുംഭം (Aquarius)\n12: മീനം (Pisces)\n\n" +
		"നമ്പർ നൽകുക:",
	zodiacRange: "❌ തെറ്റായ തിരഞ്ഞെടുപ്പ്. ദയവായി 1 മുതൽ 12 വരെയുള്ള നമ്പർ നൽകുക.",
	yearPrompt:  "✅ ലഭിച്ചു! ഇപ്പോൾ വർഷം നൽകുക (ഉദാ: 2025):",
	invalidYear: "❌ ശരിയായ വർഷം നൽകുക.",
	categoryMenu: "താങ്കളുടെ പ്രവചന വിഭാഗം തിരഞ്ഞെടുക്കുക:\n" +
		"1. ആരോഗ്യം\n2. ശരീരഘടന\n3. ബന്ധം\n4. കരിയർ\n" +
		"5. യാത്ര\n6. കുടുംബം\n7. സുഹൃത്തുക്കൾ\n8. സാമ്പത്തികം\n9. പ്രതിഷ്ഠ\n\n" +
		"നമ്പർ നൽകുക:",
	categoryRange:   "❌ തെറ്റായ തിരഞ്ഞെടുപ്പ്. ദയവായി 1 മുതൽ 9 വരെയുള്ള നമ്പർ നൽകുക.",
	invalidInput:    "❌ തെറ്റായ പ്രവേശനം. ദയവായി വീണ്ടും ആരംഭിക്കുക.",
	sessionError:    "⚠️ സെഷൻ പിശക്. ദയവായി 'hi' അയച്ച് വീണ്ടും ആരംഭിക്കുക.",
	predictionError: "❌ ക്ഷമിക്കണം, താങ്കളുടെ പ്രവചനം ലഭ്യമാക്കാൻ കഴിഞ്ഞില്ല. ദയവായി പിന്നീട് വീണ്ടും ശ്രമിക്കുക.",
	renderError:     "❌ PDF തയ്യാറാക്കുന്നതിൽ പിശക്. ദയവായി പിന്നീട് വീണ്ടും ശ്രമിക്കുക.",
	sendError:       "❌ PDF അയയ്ക്കുന്നതിൽ പിശക്. ദയവായി പിന്നീട് വീണ്ടും ശ്രമിക്കുക.",
	farewell:        "🌟 താങ്കളുടെ ചാറ്റ് അവസാനിച്ചു. വീണ്ടും ആരംഭിക്കാൻ 'hi' അല്ലെങ്കിൽ 'hello' അയയ്ക്കുക.",
	captionFormat:   "✅ താങ്കളുടെ %s പ്രവചനം %s ലേക്ക് തയ്യാറായി. PDF താഴെ നിന്ന് ഡൗൺലോഡ് ചെയ്യുക.",
}

// catalogFor は言語の文面を返す。未選択は英語。
func catalogFor(lang model.Language) *catalog {
	if lang == model.LanguageMalayalam {
		return malayalam
	}
	return english
}

// caption はレポート送信時の本文。
func (c *catalog) caption(lang model.Language, category model.Category, year string) string {
	return fmt.Sprintf(c.captionFormat, category.Label(lang), year)
}
