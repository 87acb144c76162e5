package recipe

import (
	"encoding/binary"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"go.etcd.io/bbolt"
)

const (
	recipesBucket = "recipes"
	titlesBucket  = "recipe_titles"
)

// DB defines the interface for recipe storage
type DB interface {
	// ListRecipes returns all recipes in insertion order
	ListRecipes() ([]*Recipe, error)

	// GetRecipe retrieves a recipe by ID. A missing recipe is not an error.
	GetRecipe(id uint64) (*Recipe, bool, error)

	// FindByTitle retrieves a recipe by its exact title
	FindByTitle(title string) (*Recipe, bool, error)

	// AddRecipe stores a new recipe and returns its assigned ID
	AddRecipe(r *Recipe) (uint64, error)

	// UpdateRecipe replaces the stored recipe with the same ID
	UpdateRecipe(r *Recipe) error

	// DeleteRecipe removes a recipe. Deleting a missing ID is a no-op.
	DeleteRecipe(id uint64) error

	// BulkImport stores records in order as a single transaction
	BulkImport(records []*Recipe, mode ImportMode) (ImportResult, error)

	// Close closes the database connection
	Close() error
}

// BoltDB implements the DB interface using BoltDB. The file is opened on
// first use.
type BoltDB struct {
	path string

	mu sync.Mutex
	db *bbolt.DB
}

// NewBoltDB creates a BoltDB for path without opening it
func NewBoltDB(path string) *BoltDB {
	return &BoltDB{path: path}
}

// OpenBoltDB creates a BoltDB and opens it immediately
func OpenBoltDB(path string) (*BoltDB, error) {
	b := NewBoltDB(path)
	if err := b.Open(); err != nil {
		return nil, err
	}
	return b, nil
}

// Open opens the database file and creates the buckets. Calling it again
// on an open database does nothing.
func (b *BoltDB) Open() error {
	_, err := b.conn()
	return err
}

func (b *BoltDB) conn() (*bbolt.DB, error) {
	b.mu.Lock()
	defer b.mu.Unlock()

	if b.db != nil {
		return b.db, nil
	}

	db, err := bbolt.Open(b.path, 0600, &bbolt.Options{Timeout: 1 * time.Second})
	if err != nil {
		return nil, fmt.Errorf("opening boltdb: %w", err)
	}

	err = db.Update(func(tx *bbolt.Tx) error {
		if _, err := tx.CreateBucketIfNotExists([]byte(recipesBucket)); err != nil {
			return err
		}
		if _, err := tx.CreateBucketIfNotExists([]byte(titlesBucket)); err != nil {
			return err
		}
		return nil
	})
	if err != nil {
		db.Close()
		return nil, fmt.Errorf("creating buckets: %w", err)
	}

	b.db = db
	return db, nil
}

func (b *BoltDB) view(fn func(tx *bbolt.Tx) error) error {
	db, err := b.conn()
	if err != nil {
		return err
	}
	return db.View(fn)
}

func (b *BoltDB) update(fn func(tx *bbolt.Tx) error) error {
	db, err := b.conn()
	if err != nil {
		return err
	}
	return db.Update(fn)
}

// ListRecipes returns all recipes
func (b *BoltDB) ListRecipes() ([]*Recipe, error) {
	recipes := make([]*Recipe, 0)
	err := b.view(func(tx *bbolt.Tx) error {
		return tx.Bucket([]byte(recipesBucket)).ForEach(func(k, v []byte) error {
			var r Recipe
			if err := json.Unmarshal(v, &r); err != nil {
				return fmt.Errorf("unmarshaling recipe: %w", err)
			}
			recipes = append(recipes, &r)
			return nil
		})
	})
	if err != nil {
		return nil, err
	}
	return recipes, nil
}

// GetRecipe retrieves a recipe by ID
func (b *BoltDB) GetRecipe(id uint64) (*Recipe, bool, error) {
	var r *Recipe
	err := b.view(func(tx *bbolt.Tx) error {
		var err error
		r, err = getRecipe(tx, id)
		return err
	})
	if err != nil {
		return nil, false, err
	}
	return r, r != nil, nil
}

// FindByTitle retrieves a recipe through the title index
func (b *BoltDB) FindByTitle(title string) (*Recipe, bool, error) {
	var r *Recipe
	err := b.view(func(tx *bbolt.Tx) error {
		id := tx.Bucket([]byte(titlesBucket)).Get([]byte(title))
		if id == nil {
			return nil
		}
		var err error
		r, err = getRecipe(tx, btoi(id))
		return err
	})
	if err != nil {
		return nil, false, err
	}
	return r, r != nil, nil
}

// AddRecipe stores a new recipe. The title must not be taken.
func (b *BoltDB) AddRecipe(r *Recipe) (uint64, error) {
	if err := r.Validate(); err != nil {
		return 0, err
	}

	var id uint64
	err := b.update(func(tx *bbolt.Tx) error {
		if tx.Bucket([]byte(titlesBucket)).Get([]byte(r.Title)) != nil {
			return ErrDuplicateTitle
		}
		var err error
		id, err = insertRecipe(tx, r)
		return err
	})
	if err != nil {
		return 0, err
	}
	return id, nil
}

// UpdateRecipe replaces a stored recipe. Renaming a recipe to a title held
// by another recipe is rejected.
func (b *BoltDB) UpdateRecipe(r *Recipe) error {
	if err := r.Validate(); err != nil {
		return err
	}

	return b.update(func(tx *bbolt.Tx) error {
		existing, err := getRecipe(tx, r.ID)
		if err != nil {
			return err
		}
		if existing == nil {
			return ErrNotFound
		}

		titles := tx.Bucket([]byte(titlesBucket))
		if existing.Title != r.Title {
			if owner := titles.Get([]byte(r.Title)); owner != nil && btoi(owner) != r.ID {
				return ErrDuplicateTitle
			}
			if err := titles.Delete([]byte(existing.Title)); err != nil {
				return fmt.Errorf("removing old title: %w", err)
			}
		}
		return putRecipe(tx, r.clone())
	})
}

// DeleteRecipe removes a recipe and its title index entry
func (b *BoltDB) DeleteRecipe(id uint64) error {
	return b.update(func(tx *bbolt.Tx) error {
		existing, err := getRecipe(tx, id)
		if err != nil || existing == nil {
			return err
		}
		if err := tx.Bucket([]byte(titlesBucket)).Delete([]byte(existing.Title)); err != nil {
			return fmt.Errorf("removing title: %w", err)
		}
		return tx.Bucket([]byte(recipesBucket)).Delete(itob(id))
	})
}

// BulkImport stores records in input order inside one write transaction.
// Records without a title, or whose title is already stored (including by
// an earlier record of the same import), are skipped. Incoming IDs are
// replaced. In overwrite mode the store is emptied first; if the
// transaction fails nothing is removed.
func (b *BoltDB) BulkImport(records []*Recipe, mode ImportMode) (ImportResult, error) {
	if mode != ImportAdd && mode != ImportOverwrite {
		return ImportResult{}, fmt.Errorf("%w: %q", ErrInvalidImportMode, mode)
	}

	var result ImportResult
	err := b.update(func(tx *bbolt.Tx) error {
		result = ImportResult{}

		if mode == ImportOverwrite {
			for _, name := range []string{recipesBucket, titlesBucket} {
				if err := tx.DeleteBucket([]byte(name)); err != nil && !errors.Is(err, bbolt.ErrBucketNotFound) {
					return fmt.Errorf("clearing %s: %w", name, err)
				}
				if _, err := tx.CreateBucket([]byte(name)); err != nil {
					return fmt.Errorf("recreating %s: %w", name, err)
				}
			}
		}

		titles := tx.Bucket([]byte(titlesBucket))
		for _, r := range records {
			if r == nil || strings.TrimSpace(r.Title) == "" || titles.Get([]byte(r.Title)) != nil {
				result.Skipped++
				continue
			}
			if _, err := insertRecipe(tx, r); err != nil {
				return fmt.Errorf("importing %q: %w", r.Title, err)
			}
			result.Added++
		}
		return nil
	})
	if err != nil {
		return ImportResult{}, err
	}
	return result, nil
}

// Close closes the database connection. It is safe to call more than once.
func (b *BoltDB) Close() error {
	b.mu.Lock()
	defer b.mu.Unlock()

	if b.db == nil {
		return nil
	}
	err := b.db.Close()
	b.db = nil
	return err
}

func getRecipe(tx *bbolt.Tx, id uint64) (*Recipe, error) {
	data := tx.Bucket([]byte(recipesBucket)).Get(itob(id))
	if data == nil {
		return nil, nil
	}
	var r Recipe
	if err := json.Unmarshal(data, &r); err != nil {
		return nil, fmt.Errorf("unmarshaling recipe %d: %w", id, err)
	}
	return &r, nil
}

// insertRecipe assigns the next sequence number as the ID of a copy of r.
func insertRecipe(tx *bbolt.Tx, r *Recipe) (uint64, error) {
	id, err := tx.Bucket([]byte(recipesBucket)).NextSequence()
	if err != nil {
		return 0, fmt.Errorf("allocating id: %w", err)
	}
	stored := r.clone()
	stored.ID = id
	if err := putRecipe(tx, stored); err != nil {
		return 0, err
	}
	return id, nil
}

func putRecipe(tx *bbolt.Tx, r *Recipe) error {
	data, err := json.Marshal(r)
	if err != nil {
		return fmt.Errorf("marshaling recipe: %w", err)
	}
	if err := tx.Bucket([]byte(recipesBucket)).Put(itob(r.ID), data); err != nil {
		return fmt.Errorf("storing recipe: %w", err)
	}
	if err := tx.Bucket([]byte(titlesBucket)).Put([]byte(r.Title), itob(r.ID)); err != nil {
		return fmt.Errorf("indexing title: %w", err)
	}
	return nil
}

// itob encodes an ID big-endian so bucket order follows insertion order
func itob(v uint64) []byte {
	b := make([]byte, 8)
	binary.BigEndian.PutUint64(b, v)
	return b
}

func btoi(b []byte) uint64 {
	return binary.BigEndian.Uint64(b)
}
