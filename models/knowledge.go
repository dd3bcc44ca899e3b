package models

// KnowledgeDocument is the parsed knowledge base JSON. Either top-level key
// may be absent; the loader treats that as an empty section, not an error.
type KnowledgeDocument struct {
	University *University `json:"truong_dai_hoc,omitempty"`
	Intents    []Intent    `json:"intents"`
}

// University bundles institution facts and per-year admissions data.
type University struct {
	GeneralInfo    GeneralInfo              `json:"thong_tin_chung"`
	AdmissionYears map[string]AdmissionYear `json:"tuyen_sinh_qua_cac_nam"`
}

type GeneralInfo struct {
	Name         string   `json:"ten_truong"`
	Abbreviation string   `json:"ten_viet_tat"`
	Address      string   `json:"dia_chi"`
	Website      string   `json:"website"`
	Email        string   `json:"email"`
	Hotline      []string `json:"hotline"`
}

// AdmissionYear is one admissions cycle: quotas, score range, methods,
// tuition, and an optional per-program breakdown.
type AdmissionYear struct {
	TotalQuota int       `json:"tong_chi_tieu"`
	ScoreRange string    `json:"diem_chuan_khoang"`
	Methods    []string  `json:"phuong_thuc_xet_tuyen"`
	Tuition    Tuition   `json:"hoc_phi"`
	Programs   []Program `json:"danh_sach_nganh"`
}

type Tuition struct {
	PerYear string `json:"theo_nam"`
	Note    string `json:"ghi_chu"`
}

// Program is one degree program's admission detail for a given year.
type Program struct {
	Name         string          `json:"nganh"`
	Code         string          `json:"ma_nganh"`
	Combinations []string        `json:"to_hop_xet"`
	Methods      []string        `json:"phuong_thuc"`
	Benchmarks   BenchmarkScores `json:"diem_chuan"`
	Tuition      string          `json:"hoc_phi_nganh"`
	PriorityNote string          `json:"uu_tien"`
}

type BenchmarkScores struct {
	Exam       float64 `json:"thi_thpt"`
	Transcript float64 `json:"hoc_ba"`
}

// Intent is a named bundle of example query patterns and candidate responses.
type Intent struct {
	Tag       string   `json:"tag"`
	Patterns  []string `json:"patterns"`
	Responses []string `json:"responses"`
}

// Metadata is per-chunk descriptive metadata. Values are kept as strings so
// the cache serialization stays trivial; numeric values are formatted.
type Metadata map[string]string

// Chunk is one immutable retrievable unit of knowledge-base text. Created at
// index-build time and never mutated afterward.
type Chunk struct {
	Text      string
	Metadata  Metadata
	SourceTag string
}

// RetrievalResult is one ranked retrieval hit, ephemeral per query.
type RetrievalResult struct {
	ChunkIndex int
	Score      float32
	Chunk      Chunk
}
