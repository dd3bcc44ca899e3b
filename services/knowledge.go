package services

import (
	"encoding/json"
	"fmt"
	"os"
	"sort"
	"strconv"
	"strings"

	"admissions-chatbot-platform/internal/logger"
	"admissions-chatbot-platform/models"
)

// LoadKnowledge parses the knowledge document. A missing or malformed file
// yields an empty document, which callers treat as a valid degraded state.
func LoadKnowledge(path string) *models.KnowledgeDocument {
	data, err := os.ReadFile(path)
	if err != nil {
		logger.Error("Error loading knowledge base", "path", path, "error", err)
		return &models.KnowledgeDocument{Intents: []models.Intent{}}
	}

	var doc models.KnowledgeDocument
	if err := json.Unmarshal(data, &doc); err != nil {
		logger.Error("Error parsing knowledge base", "path", path, "error", err)
		return &models.KnowledgeDocument{Intents: []models.Intent{}}
	}

	if doc.Intents == nil {
		doc.Intents = []models.Intent{}
	}

	return &doc
}

// ExtractChunks flattens the document into retrievable chunks. The order is
// deterministic for a given document: institution profile, admission years
// sorted ascending (summary then per-program details), then intents in
// document order. Cache reuse relies on this stability.
func ExtractChunks(doc *models.KnowledgeDocument) []models.Chunk {
	chunks := make([]models.Chunk, 0)

	if doc.University != nil {
		info := doc.University.GeneralInfo
		if info.Name != "" || info.Address != "" {
			text := fmt.Sprintf(`Thông tin trường:
Tên: %s
Viết tắt: %s
Địa chỉ: %s
Website: %s
Email: %s
Hotline: %s`,
				orNA(info.Name), orNA(info.Abbreviation), orNA(info.Address),
				orNA(info.Website), orNA(info.Email), orNA(strings.Join(info.Hotline, ", ")))
			chunks = append(chunks, models.Chunk{
				Text:      text,
				Metadata:  models.Metadata{"type": "thong_tin_chung"},
				SourceTag: "truong_dai_hoc",
			})
		}

		years := make([]string, 0, len(doc.University.AdmissionYears))
		for year := range doc.University.AdmissionYears {
			years = append(years, year)
		}
		sort.Strings(years)

		for _, year := range years {
			data := doc.University.AdmissionYears[year]

			tuition := data.Tuition.PerYear
			if tuition == "" {
				tuition = data.Tuition.Note
			}
			text := fmt.Sprintf(`Tuyển sinh năm %s:
Chỉ tiêu: %s
Điểm chuẩn: %s
Phương thức: %s
Học phí: %s`,
				year, orNA(formatInt(data.TotalQuota)), orNA(data.ScoreRange),
				orNA(strings.Join(data.Methods, ", ")), orNA(tuition))
			chunks = append(chunks, models.Chunk{
				Text:      text,
				Metadata:  models.Metadata{"type": "tuyen_sinh_nam", "nam": year},
				SourceTag: "truong_dai_hoc",
			})

			for _, prog := range data.Programs {
				text := fmt.Sprintf(`Ngành %s (Mã: %s) - Năm %s:
Tổ hợp xét tuyển: %s
Phương thức: %s
Điểm chuẩn thi THPT: %s
Điểm chuẩn học bạ: %s
Học phí: %s
Ưu tiên: %s`,
					prog.Name, prog.Code, year,
					orNA(strings.Join(prog.Combinations, ", ")),
					orNA(strings.Join(prog.Methods, ", ")),
					orNA(formatScore(prog.Benchmarks.Exam)),
					orNA(formatScore(prog.Benchmarks.Transcript)),
					orNA(prog.Tuition), orNA(prog.PriorityNote))
				chunks = append(chunks, models.Chunk{
					Text: text,
					Metadata: models.Metadata{
						"type":      "nganh_hoc",
						"nam":       year,
						"ma_nganh":  prog.Code,
						"ten_nganh": prog.Name,
					},
					SourceTag: "truong_dai_hoc",
				})
			}
		}
	}

	for _, intent := range doc.Intents {
		text := fmt.Sprintf(`Câu hỏi thường gặp về %s:
Các cách hỏi: %s
Trả lời:
%s`,
			intent.Tag,
			strings.Join(intent.Patterns, ", "),
			strings.Join(intent.Responses, "\n"))
		chunks = append(chunks, models.Chunk{
			Text:      text,
			Metadata:  models.Metadata{"type": "intent", "tag": intent.Tag},
			SourceTag: "intents",
		})
	}

	return chunks
}

func orNA(s string) string {
	if strings.TrimSpace(s) == "" {
		return "N/A"
	}
	return s
}

func formatInt(n int) string {
	if n == 0 {
		return ""
	}
	return strconv.Itoa(n)
}

func formatScore(f float64) string {
	if f == 0 {
		return ""
	}
	return strconv.FormatFloat(f, 'g', -1, 64)
}
