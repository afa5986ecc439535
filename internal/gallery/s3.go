package gallery

import (
	"bytes"
	"context"
	"crypto/aes"
	"crypto/cipher"
	"crypto/rand"
	"crypto/sha256"
	"fmt"
	"io"
	"sort"
	"strings"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	awscfg "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/feature/s3/manager"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/google/uuid"
	"github.com/rs/zerolog/log"
	"golang.org/x/crypto/pbkdf2"

	"github.com/local/genstudio/internal/artifact"
	mpkg "github.com/local/genstudio/internal/metrics"
)

// Store keeps user artifacts (generated images and videos) encrypted in S3
// under gallery/<user>/<id>. Payloads are AES-GCM encrypted with a key
// derived from the store secret; descriptive fields travel as object
// metadata so listing never has to download bodies.
type Store struct {
	client   *s3.Client
	uploader *manager.Uploader
	bucket   string
	secret   string
}

const gcmMagic = "GCM3NCR0"

// New creates a gallery store against the given bucket. The secret guards
// every object in the bucket; an empty secret is refused.
func New(ctx context.Context, bucket, secret string) (*Store, error) {
	if secret == "" {
		return nil, fmt.Errorf("gallery secret is required")
	}
	cfg, err := awscfg.LoadDefaultConfig(ctx)
	if err != nil {
		return nil, fmt.Errorf("load AWS config: %w", err)
	}
	cli := s3.NewFromConfig(cfg)
	return &Store{
		client:   cli,
		uploader: manager.NewUploader(cli),
		bucket:   bucket,
		secret:   secret,
	}, nil
}

func (s *Store) key(userID, id string) string {
	return fmt.Sprintf("gallery/%s/%s", userID, id)
}

// Save encrypts and stores an artifact, returning its gallery item.
func (s *Store) Save(ctx context.Context, userID string, kind artifact.Kind, mime, prompt string, data []byte) (artifact.Item, error) {
	item := artifact.Item{
		ID:        uuid.NewString(),
		Kind:      kind,
		MIME:      mime,
		Prompt:    prompt,
		CreatedAt: time.Now().UTC(),
	}

	encrypted, err := s.encrypt(data)
	if err != nil {
		mpkg.IncGallery("save", "error")
		return artifact.Item{}, fmt.Errorf("encrypt artifact: %w", err)
	}

	meta := map[string]string{
		"kind":       string(kind),
		"mime":       mime,
		"prompt":     truncate(prompt, 1024),
		"created-at": item.CreatedAt.Format(time.RFC3339Nano),
	}

	_, err = s.uploader.Upload(ctx, &s3.PutObjectInput{
		Bucket:   aws.String(s.bucket),
		Key:      aws.String(s.key(userID, item.ID)),
		Body:     bytes.NewReader(encrypted),
		Metadata: meta,
	})
	if err != nil {
		mpkg.IncGallery("save", "error")
		return artifact.Item{}, fmt.Errorf("upload artifact: %w", err)
	}

	mpkg.IncGallery("save", "ok")
	log.Info().
		Str("user_id", userID).
		Str("item_id", item.ID).
		Str("kind", string(kind)).
		Int("size", len(data)).
		Msg("saved artifact to gallery")
	return item, nil
}

// List returns the user's gallery items, newest first.
func (s *Store) List(ctx context.Context, userID string) ([]artifact.Item, error) {
	prefix := fmt.Sprintf("gallery/%s/", userID)
	items := make([]artifact.Item, 0, 16)

	paginator := s3.NewListObjectsV2Paginator(s.client, &s3.ListObjectsV2Input{
		Bucket: aws.String(s.bucket),
		Prefix: aws.String(prefix),
	})
	for paginator.HasMorePages() {
		page, err := paginator.NextPage(ctx)
		if err != nil {
			mpkg.IncGallery("list", "error")
			return nil, fmt.Errorf("list gallery: %w", err)
		}
		for _, obj := range page.Contents {
			if obj.Key == nil {
				continue
			}
			id := strings.TrimPrefix(*obj.Key, prefix)
			head, err := s.client.HeadObject(ctx, &s3.HeadObjectInput{
				Bucket: aws.String(s.bucket),
				Key:    obj.Key,
			})
			if err != nil {
				log.Warn().Err(err).Str("key", *obj.Key).Msg("gallery head failed, skipping item")
				continue
			}
			items = append(items, itemFromMeta(id, head.Metadata))
		}
	}

	sort.Slice(items, func(i, j int) bool { return items[i].CreatedAt.After(items[j].CreatedAt) })
	mpkg.IncGallery("list", "ok")
	return items, nil
}

// Load fetches and decrypts one artifact.
func (s *Store) Load(ctx context.Context, userID, id string) (artifact.Item, []byte, error) {
	out, err := s.client.GetObject(ctx, &s3.GetObjectInput{
		Bucket: aws.String(s.bucket),
		Key:    aws.String(s.key(userID, id)),
	})
	if err != nil {
		mpkg.IncGallery("load", "error")
		return artifact.Item{}, nil, fmt.Errorf("download artifact: %w", err)
	}
	defer out.Body.Close()

	encrypted, err := io.ReadAll(out.Body)
	if err != nil {
		mpkg.IncGallery("load", "error")
		return artifact.Item{}, nil, fmt.Errorf("read artifact body: %w", err)
	}
	data, err := s.decrypt(encrypted)
	if err != nil {
		mpkg.IncGallery("load", "error")
		return artifact.Item{}, nil, fmt.Errorf("decrypt artifact: %w", err)
	}

	mpkg.IncGallery("load", "ok")
	return itemFromMeta(id, out.Metadata), data, nil
}

// Delete removes one artifact.
func (s *Store) Delete(ctx context.Context, userID, id string) error {
	_, err := s.client.DeleteObject(ctx, &s3.DeleteObjectInput{
		Bucket: aws.String(s.bucket),
		Key:    aws.String(s.key(userID, id)),
	})
	if err != nil {
		mpkg.IncGallery("delete", "error")
		return fmt.Errorf("delete artifact: %w", err)
	}
	mpkg.IncGallery("delete", "ok")
	log.Info().Str("user_id", userID).Str("item_id", id).Msg("deleted gallery artifact")
	return nil
}

func itemFromMeta(id string, meta map[string]string) artifact.Item {
	it := artifact.Item{ID: id}
	// S3 may return metadata keys capitalized
	get := func(k string) string {
		if v, ok := meta[k]; ok {
			return v
		}
		for mk, v := range meta {
			if strings.EqualFold(mk, k) {
				return v
			}
		}
		return ""
	}
	it.Kind = artifact.Kind(get("kind"))
	it.MIME = get("mime")
	it.Prompt = get("prompt")
	if v := get("created-at"); v != "" {
		if t, err := time.Parse(time.RFC3339Nano, v); err == nil {
			it.CreatedAt = t
		}
	}
	return it
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n]
}

// encrypt seals data with AES-GCM. Layout: magic(8) + salt(16) + nonce(12) +
// ciphertext||tag.
func (s *Store) encrypt(data []byte) ([]byte, error) {
	salt := make([]byte, 16)
	if _, err := io.ReadFull(rand.Reader, salt); err != nil {
		return nil, fmt.Errorf("generate salt: %w", err)
	}
	key := pbkdf2.Key([]byte(s.secret), salt, 100000, 32, sha256.New)
	block, err := aes.NewCipher(key)
	if err != nil {
		return nil, fmt.Errorf("create cipher: %w", err)
	}
	gcm, err := cipher.NewGCM(block)
	if err != nil {
		return nil, fmt.Errorf("create GCM: %w", err)
	}
	nonce := make([]byte, gcm.NonceSize())
	if _, err := io.ReadFull(rand.Reader, nonce); err != nil {
		return nil, fmt.Errorf("generate nonce: %w", err)
	}
	sealed := gcm.Seal(nil, nonce, data, nil)

	out := make([]byte, 0, len(gcmMagic)+len(salt)+len(nonce)+len(sealed))
	out = append(out, gcmMagic...)
	out = append(out, salt...)
	out = append(out, nonce...)
	out = append(out, sealed...)
	return out, nil
}

func (s *Store) decrypt(encrypted []byte) ([]byte, error) {
	if len(encrypted) < 8+16+12+16 {
		return nil, fmt.Errorf("encrypted data too short: %d bytes", len(encrypted))
	}
	if string(encrypted[:8]) != gcmMagic {
		return nil, fmt.Errorf("unknown encryption format")
	}
	salt := encrypted[8:24]
	nonce := encrypted[24:36]
	sealed := encrypted[36:]

	key := pbkdf2.Key([]byte(s.secret), salt, 100000, 32, sha256.New)
	block, err := aes.NewCipher(key)
	if err != nil {
		return nil, fmt.Errorf("create cipher: %w", err)
	}
	gcm, err := cipher.NewGCM(block)
	if err != nil {
		return nil, fmt.Errorf("create GCM: %w", err)
	}
	plaintext, err := gcm.Open(nil, nonce, sealed, nil)
	if err != nil {
		return nil, fmt.Errorf("GCM decryption failed: %w", err)
	}
	return plaintext, nil
}
