package recipe

import (
	"bytes"
	"encoding/json"
	"time"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"
)

var _ = Describe("WriteExport", func() {
	var (
		buf bytes.Buffer
		err error
	)

	BeforeEach(func() {
		buf.Reset()
		loc := time.FixedZone("EST", -5*60*60)
		err = WriteExport(&buf, []*Recipe{
			{ID: 3, Title: "Soup", Ingredients: []string{"water"}, Instructions: "Boil"},
		}, time.Date(2024, 3, 1, 7, 30, 0, 250_000_000, loc))
	})

	It("should not return an error", func() {
		Expect(err).NotTo(HaveOccurred())
	})

	It("should write a versioned document with a UTC timestamp", func() {
		Expect(buf.String()).To(MatchJSON(`{
			"version": 1,
			"exportedAt": "2024-03-01T12:30:00.250Z",
			"recipes": [{"id": 3, "title": "Soup", "ingredients": ["water"], "instructions": "Boil"}]
		}`))
	})

	It("should indent with two spaces", func() {
		Expect(buf.String()).To(HavePrefix("{\n  \"version\": 1,"))
	})

	It("should be readable by ParseImportFile", func() {
		recipes, parseErr := ParseImportFile(buf.Bytes())
		Expect(parseErr).NotTo(HaveOccurred())
		Expect(recipes).To(Equal([]*Recipe{{Title: "Soup", Ingredients: []string{"water"}, Instructions: "Boil"}}))
	})

	It("writes an empty array when there are no recipes", func() {
		var out bytes.Buffer
		Expect(WriteExport(&out, nil, time.Now())).To(Succeed())
		var file ExportFile
		Expect(json.Unmarshal(out.Bytes(), &file)).To(Succeed())
		Expect(file.Recipes).NotTo(BeNil())
		Expect(file.Recipes).To(BeEmpty())
	})
})

var _ = Describe("ParseImportFile", func() {
	It("reads the recipes of an export document", func() {
		recipes, err := ParseImportFile([]byte(`{"recipes":[{"title":"A","ingredients":["x"],"instructions":"y"},{"title":"A","ingredients":["z"],"instructions":"w"}]}`))
		Expect(err).NotTo(HaveOccurred())
		Expect(recipes).To(HaveLen(2))
		Expect(recipes[0].Ingredients).To(Equal([]string{"x"}))
		Expect(recipes[1].Ingredients).To(Equal([]string{"z"}))
	})

	It("reads a bare array", func() {
		recipes, err := ParseImportFile([]byte(` [{"title":"B"}] `))
		Expect(err).NotTo(HaveOccurred())
		Expect(titles(recipes)).To(Equal([]string{"B"}))
	})

	It("drops incoming ids of any type", func() {
		recipes, err := ParseImportFile([]byte(`[{"id":"abc","title":"A"},{"id":12,"title":"B"}]`))
		Expect(err).NotTo(HaveOccurred())
		Expect(recipes[0].ID).To(BeZero())
		Expect(recipes[1].ID).To(BeZero())
	})

	It("turns malformed entries into untitled records", func() {
		recipes, err := ParseImportFile([]byte(`["not a recipe", {"title": 5}, null]`))
		Expect(err).NotTo(HaveOccurred())
		Expect(titles(recipes)).To(Equal([]string{"", "", ""}))
	})

	It("keeps an entry whose other fields have the wrong type", func() {
		recipes, err := ParseImportFile([]byte(`[{"title":"A","ingredients":"x\ny","instructions":7}]`))
		Expect(err).NotTo(HaveOccurred())
		Expect(recipes).To(HaveLen(1))
		Expect(recipes[0].Title).To(Equal("A"))
		Expect(recipes[0].Ingredients).To(Equal([]string{"x", "y"}))
		Expect(recipes[0].Instructions).To(BeEmpty())
	})

	DescribeTable("rejects other shapes",
		func(input string) {
			_, err := ParseImportFile([]byte(input))
			Expect(err).To(MatchError(ErrInvalidImportFormat))
		},
		Entry("empty", ""),
		Entry("object without recipes", `{"version":1}`),
		Entry("recipes is not an array", `{"recipes":{"title":"A"}}`),
		Entry("recipes is null", `{"recipes":null}`),
		Entry("a string", `"recipes"`),
		Entry("a number", `42`),
		Entry("broken json", `[{"title":`),
	)
})
