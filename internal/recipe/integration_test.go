package recipe_test

import (
	"bytes"
	"context"
	"path/filepath"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"

	"github.com/zombor/recipescan/internal/capture"
	"github.com/zombor/recipescan/internal/recipe"
	"github.com/zombor/recipescan/internal/structuring"
)

var _ = Describe("Import and export round trip", func() {
	var (
		db      *recipe.BoltDB
		service *recipe.Service
	)

	BeforeEach(func() {
		var err error
		db, err = recipe.OpenBoltDB(filepath.Join(GinkgoT().TempDir(), "recipes.db"))
		Expect(err).NotTo(HaveOccurred())
		service = recipe.NewService(db, capture.NewNormalizer(), nil, nil, structuring.Config{})
	})

	AfterEach(func() {
		Expect(db.Close()).To(Succeed())
	})

	It("keeps the first of two recipes with the same title", func() {
		result, err := service.Import([]byte(`{"recipes":[{"title":"A","ingredients":["x"],"instructions":"y"},{"title":"A","ingredients":["z"],"instructions":"w"}]}`), recipe.ImportAdd)
		Expect(err).NotTo(HaveOccurred())
		Expect(result).To(Equal(recipe.ImportResult{Added: 1, Skipped: 1}))

		stored, found, err := db.FindByTitle("A")
		Expect(err).NotTo(HaveOccurred())
		Expect(found).To(BeTrue())
		Expect(stored.Ingredients).To(Equal([]string{"x"}))
	})

	It("restores an export into an emptied store", func() {
		for _, title := range []string{"Soup", "Bread", "Pie"} {
			_, err := service.CreateRecipe(&recipe.Recipe{Title: title, Ingredients: []string{title + " base"}})
			Expect(err).NotTo(HaveOccurred())
		}

		var backup bytes.Buffer
		Expect(service.Export(&backup)).To(Succeed())

		_, err := service.Import([]byte(`[{"title":"Scratch"}]`), recipe.ImportOverwrite)
		Expect(err).NotTo(HaveOccurred())

		result, err := service.Import(backup.Bytes(), recipe.ImportOverwrite)
		Expect(err).NotTo(HaveOccurred())
		Expect(result).To(Equal(recipe.ImportResult{Added: 3}))

		recipes, err := service.ListRecipes()
		Expect(err).NotTo(HaveOccurred())
		Expect(recipes).To(HaveLen(3))
		Expect(recipes[0].Title).To(Equal("Soup"))
		Expect(recipes[2].Ingredients).To(Equal([]string{"Pie base"}))
	})

	It("never lowers the recipe count when adding", func() {
		_, err := service.CreateRecipe(&recipe.Recipe{Title: "Soup"})
		Expect(err).NotTo(HaveOccurred())

		result, err := service.Import([]byte(`[{"title":"Soup"},{"title":""},{"title":"Stew"}]`), recipe.ImportAdd)
		Expect(err).NotTo(HaveOccurred())
		Expect(result).To(Equal(recipe.ImportResult{Added: 1, Skipped: 2}))

		recipes, err := service.ListRecipes()
		Expect(err).NotTo(HaveOccurred())
		Expect(recipes).To(HaveLen(2))
	})

	It("rejects scans without images before touching the pipeline", func() {
		_, err := service.Scan(context.Background(), nil)
		Expect(err).To(HaveOccurred())
	})
})
