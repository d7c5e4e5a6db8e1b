// Package prompt 负责组装发送给模型的提示词。
package prompt

import "sort"

// Template 是一个领域写作模板。
type Template struct {
	ID          string `json:"id"`
	Name        string `json:"name"`
	Category    string `json:"category"`
	Instruction string `json:"instruction"`
}

const (
	CategoryMedical    = "medical"
	CategoryLegal      = "legal"
	CategoryGovernment = "government"
)

var catalog = map[string]Template{
	"arztbericht": {
		ID: "arztbericht", Name: "Arztbericht", Category: CategoryMedical,
		Instruction: "Erstelle einen strukturierten Arztbericht auf Grundlage der Patientendaten und des Befunds.",
	},
	"befundvorlage": {
		ID: "befundvorlage", Name: "Befundvorlage", Category: CategoryMedical,
		Instruction: "Formuliere einen Befund nach der Vorlage: Untersuchung, Ergebnisse, Beurteilung, Empfehlung.",
	},
	"anamnese": {
		ID: "anamnese", Name: "Anamnese", Category: CategoryMedical,
		Instruction: "Fasse die Anamnese des Patienten sachlich und vollständig zusammen.",
	},
	"vertragsanalyse": {
		ID: "vertragsanalyse", Name: "Vertragsanalyse", Category: CategoryLegal,
		Instruction: "Analysiere den Vertrag und benenne Pflichten, Fristen, Risiken und auffällige Klauseln.",
	},
	"textentwurf": {
		ID: "textentwurf", Name: "Textentwurf", Category: CategoryLegal,
		Instruction: "Entwirf einen juristischen Text im förmlichen Stil passend zum Sachverhalt.",
	},
	"dokumentenprüfung": {
		ID: "dokumentenprüfung", Name: "Dokumentenprüfung", Category: CategoryLegal,
		Instruction: "Prüfe das Dokument auf Vollständigkeit, Widersprüche und formale Fehler.",
	},
	"bericht": {
		ID: "bericht", Name: "Bericht", Category: CategoryGovernment,
		Instruction: "Verfasse einen sachlichen Verwaltungsbericht mit Anlass, Sachstand und Ergebnis.",
	},
	"protokoll": {
		ID: "protokoll", Name: "Protokoll", Category: CategoryGovernment,
		Instruction: "Erstelle ein Protokoll mit Teilnehmern, Tagesordnung, Beschlüssen und Aufgaben.",
	},
	"dokumentation": {
		ID: "dokumentation", Name: "Dokumentation", Category: CategoryGovernment,
		Instruction: "Dokumentiere den Vorgang nachvollziehbar in chronologischer Reihenfolge.",
	},
}

// 无变音符号的转写形式
var aliases = map[string]string{
	"dokumentenpruefung": "dokumentenprüfung",
}

// Lookup 按 id 查找模板，也接受 ue 转写的 id。
func Lookup(id string) (Template, bool) {
	if canonical, ok := aliases[id]; ok {
		id = canonical
	}
	t, ok := catalog[id]
	return t, ok
}

// Catalog 按类别分组返回全部模板，组内按 id 排序。
func Catalog() map[string][]Template {
	grouped := make(map[string][]Template)
	for _, t := range catalog {
		grouped[t.Category] = append(grouped[t.Category], t)
	}
	for _, list := range grouped {
		sort.Slice(list, func(i, j int) bool { return list[i].ID < list[j].ID })
	}
	return grouped
}

// ApplyTemplate 在模板 id 和上下文都非空时，把指令、上下文和请求拼成一个提示词。
// 未知的模板 id 只拼接上下文和请求。上下文为空时原样返回 prompt，
// 即使给出了模板 id 也不套用模板。applied 表示结果是否由模板构造。
func ApplyTemplate(templateID, context, prompt string) (result string, applied bool) {
	if templateID == "" || context == "" {
		return prompt, false
	}
	block := "Kontext: " + context + "\n\nAnfrage: " + prompt
	t, ok := Lookup(templateID)
	if !ok {
		return block, true
	}
	return t.Instruction + "\n\n" + block, true
}
