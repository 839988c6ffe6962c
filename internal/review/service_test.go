package review

import (
	"context"
	"errors"
	"io"
	"strings"
	"testing"

	"github.com/carlosssgaalvez/reviews-examen/internal/model"
)

// --- モック定義 ---

type mockReviewRepo struct {
	createFn   func(ctx context.Context, review *model.Review) error
	findByIDFn func(ctx context.Context, id string) (*model.Review, error)
	listAllFn  func(ctx context.Context) ([]*model.Review, error)

	created []*model.Review
}

func (m *mockReviewRepo) Create(ctx context.Context, review *model.Review) error {
	m.created = append(m.created, review)
	if m.createFn != nil {
		return m.createFn(ctx, review)
	}
	return nil
}

func (m *mockReviewRepo) FindByID(ctx context.Context, id string) (*model.Review, error) {
	if m.findByIDFn != nil {
		return m.findByIDFn(ctx, id)
	}
	return nil, nil
}

func (m *mockReviewRepo) ListAll(ctx context.Context) ([]*model.Review, error) {
	if m.listAllFn != nil {
		return m.listAllFn(ctx)
	}
	return nil, nil
}

type mockGeocoder struct {
	lookupFn func(ctx context.Context, address string) (*model.Coordinates, error)
}

func (m *mockGeocoder) Lookup(ctx context.Context, address string) (*model.Coordinates, error) {
	if m.lookupFn != nil {
		return m.lookupFn(ctx, address)
	}
	return nil, nil
}

type mockUploader struct {
	enabled  bool
	uploadFn func(ctx context.Context, filename string, file io.Reader) (string, error)
}

func (m *mockUploader) Upload(ctx context.Context, filename string, file io.Reader) (string, error) {
	if m.uploadFn != nil {
		return m.uploadFn(ctx, filename, file)
	}
	return "", nil
}

func (m *mockUploader) Enabled() bool {
	return m.enabled
}

// passthroughSanitizer はタグ除去なしでTrimSpaceのみを行うテスト用サニタイザ。
type passthroughSanitizer struct{}

func (passthroughSanitizer) Sanitize(input string) string {
	return strings.TrimSpace(input)
}

type mockRecorder struct {
	reviewsCreated  int
	uploadFailures  int
	geocodeFailures int
}

func (m *mockRecorder) RecordReviewCreated()  { m.reviewsCreated++ }
func (m *mockRecorder) RecordUploadFailure()  { m.uploadFailures++ }
func (m *mockRecorder) RecordGeocodeFailure() { m.geocodeFailures++ }

func newTestService(repo *mockReviewRepo, geocoder *mockGeocoder, uploader *mockUploader, recorder *mockRecorder) *Service {
	return NewService(repo, geocoder, uploader, passthroughSanitizer{}, recorder)
}

func validInput() CreateInput {
	return CreateInput{
		Establishment: "Café Central",
		Address:       "Plaza de la Constitución, Málaga",
		Rating:        4,
		Claims:        model.Claims{Email: "taro@example.com", Name: "Taro"},
	}
}

// --- テスト ---

func TestService_Create_Success(t *testing.T) {
	repo := &mockReviewRepo{}
	geocoder := &mockGeocoder{
		lookupFn: func(ctx context.Context, address string) (*model.Coordinates, error) {
			return &model.Coordinates{Lat: 36.72, Lon: -4.42}, nil
		},
	}
	recorder := &mockRecorder{}
	svc := newTestService(repo, geocoder, &mockUploader{}, recorder)

	review, err := svc.Create(context.Background(), validInput())
	if err != nil {
		t.Fatalf("Create failed: %v", err)
	}

	if review.ID == "" {
		t.Error("review should be assigned an ID")
	}
	if review.Establishment != "Café Central" {
		t.Errorf("Establishment = %q", review.Establishment)
	}
	if review.Coordinates.Lat != 36.72 || review.Coordinates.Lon != -4.42 {
		t.Errorf("Coordinates = %+v", review.Coordinates)
	}
	if review.AuthorEmail != "taro@example.com" {
		t.Errorf("AuthorEmail = %q", review.AuthorEmail)
	}
	if review.CreatedAt.IsZero() {
		t.Error("CreatedAt should be set")
	}
	if len(repo.created) != 1 {
		t.Errorf("repo received %d reviews, want 1", len(repo.created))
	}
	if recorder.reviewsCreated != 1 {
		t.Errorf("reviewsCreated = %d, want 1", recorder.reviewsCreated)
	}
}

func TestService_Create_ValidationErrors(t *testing.T) {
	tests := []struct {
		name     string
		mutate   func(in *CreateInput)
		wantCode string
	}{
		{
			name:     "店舗名が空",
			mutate:   func(in *CreateInput) { in.Establishment = "" },
			wantCode: model.ErrCodeMissingField,
		},
		{
			name:     "住所が空白のみ",
			mutate:   func(in *CreateInput) { in.Address = "   " },
			wantCode: model.ErrCodeMissingField,
		},
		{
			name:     "評価が範囲外（負）",
			mutate:   func(in *CreateInput) { in.Rating = -1 },
			wantCode: model.ErrCodeInvalidRating,
		},
		{
			name:     "評価が範囲外（上限超過）",
			mutate:   func(in *CreateInput) { in.Rating = 6 },
			wantCode: model.ErrCodeInvalidRating,
		},
		{
			name:     "投稿者のクレームなし",
			mutate:   func(in *CreateInput) { in.Claims = model.Claims{} },
			wantCode: model.ErrCodeSessionAbsent,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			repo := &mockReviewRepo{}
			svc := newTestService(repo, &mockGeocoder{}, &mockUploader{}, &mockRecorder{})

			input := validInput()
			tt.mutate(&input)

			_, err := svc.Create(context.Background(), input)
			if err == nil {
				t.Fatal("Create should fail validation")
			}

			var apiErr *model.APIError
			if !errors.As(err, &apiErr) {
				t.Fatalf("error should be *model.APIError, got %T", err)
			}
			if apiErr.Code != tt.wantCode {
				t.Errorf("Code = %q, want %q", apiErr.Code, tt.wantCode)
			}
			if len(repo.created) != 0 {
				t.Error("no review should be stored on validation failure")
			}
		})
	}
}

func TestService_Create_UploadFailure_ContinuesWithoutImage(t *testing.T) {
	repo := &mockReviewRepo{}
	uploader := &mockUploader{
		enabled: true,
		uploadFn: func(ctx context.Context, filename string, file io.Reader) (string, error) {
			return "", errors.New("cloudinary unreachable")
		},
	}
	recorder := &mockRecorder{}
	svc := newTestService(repo, &mockGeocoder{}, uploader, recorder)

	input := validInput()
	input.Image = strings.NewReader("image-bytes")
	input.ImageFilename = "photo.jpg"

	review, err := svc.Create(context.Background(), input)
	if err != nil {
		t.Fatalf("Create should not fail when the upload fails: %v", err)
	}

	if review.ImageURL != "" {
		t.Errorf("ImageURL = %q, want empty", review.ImageURL)
	}
	if recorder.uploadFailures != 1 {
		t.Errorf("uploadFailures = %d, want 1", recorder.uploadFailures)
	}
	if len(repo.created) != 1 {
		t.Error("review should still be stored")
	}
}

func TestService_Create_UploadSuccess_SetsImageURL(t *testing.T) {
	repo := &mockReviewRepo{}
	uploader := &mockUploader{
		enabled: true,
		uploadFn: func(ctx context.Context, filename string, file io.Reader) (string, error) {
			return "https://res.cloudinary.com/demo/photo.jpg", nil
		},
	}
	svc := newTestService(repo, &mockGeocoder{}, uploader, &mockRecorder{})

	input := validInput()
	input.Image = strings.NewReader("image-bytes")
	input.ImageFilename = "photo.jpg"

	review, err := svc.Create(context.Background(), input)
	if err != nil {
		t.Fatalf("Create failed: %v", err)
	}
	if review.ImageURL != "https://res.cloudinary.com/demo/photo.jpg" {
		t.Errorf("ImageURL = %q", review.ImageURL)
	}
}

func TestService_Create_UploaderDisabled_SkipsUpload(t *testing.T) {
	repo := &mockReviewRepo{}
	uploader := &mockUploader{
		enabled: false,
		uploadFn: func(ctx context.Context, filename string, file io.Reader) (string, error) {
			t.Error("Upload should not be called when the uploader is disabled")
			return "", nil
		},
	}
	svc := newTestService(repo, &mockGeocoder{}, uploader, &mockRecorder{})

	input := validInput()
	input.Image = strings.NewReader("image-bytes")

	review, err := svc.Create(context.Background(), input)
	if err != nil {
		t.Fatalf("Create failed: %v", err)
	}
	if review.ImageURL != "" {
		t.Errorf("ImageURL = %q, want empty", review.ImageURL)
	}
}

func TestService_Create_GeocodeFailure_StoresZeroCoordinates(t *testing.T) {
	repo := &mockReviewRepo{}
	geocoder := &mockGeocoder{
		lookupFn: func(ctx context.Context, address string) (*model.Coordinates, error) {
			return nil, errors.New("nominatim unreachable")
		},
	}
	recorder := &mockRecorder{}
	svc := newTestService(repo, geocoder, &mockUploader{}, recorder)

	review, err := svc.Create(context.Background(), validInput())
	if err != nil {
		t.Fatalf("Create should not fail when geocoding fails: %v", err)
	}

	if !review.Coordinates.IsZero() {
		t.Errorf("Coordinates = %+v, want zero", review.Coordinates)
	}
	if recorder.geocodeFailures != 1 {
		t.Errorf("geocodeFailures = %d, want 1", recorder.geocodeFailures)
	}
}

func TestService_Create_RepoFailure_ReturnsError(t *testing.T) {
	repo := &mockReviewRepo{
		createFn: func(ctx context.Context, review *model.Review) error {
			return errors.New("db down")
		},
	}
	recorder := &mockRecorder{}
	svc := newTestService(repo, &mockGeocoder{}, &mockUploader{}, recorder)

	_, err := svc.Create(context.Background(), validInput())
	if err == nil {
		t.Fatal("Create should fail when the repository fails")
	}
	if recorder.reviewsCreated != 0 {
		t.Errorf("reviewsCreated = %d, want 0", recorder.reviewsCreated)
	}
}

func TestService_Create_RecordsTokenMetadata(t *testing.T) {
	repo := &mockReviewRepo{}
	svc := newTestService(repo, &mockGeocoder{}, &mockUploader{}, &mockRecorder{})

	input := validInput()
	input.Token = &model.TokenMetadata{AccessToken: "tok"}

	review, err := svc.Create(context.Background(), input)
	if err != nil {
		t.Fatalf("Create failed: %v", err)
	}
	if review.TokenDetails == nil || review.TokenDetails.AccessToken != "tok" {
		t.Errorf("TokenDetails = %+v, want access token tok", review.TokenDetails)
	}
}

func TestService_Get_NotFound_ReturnsNil(t *testing.T) {
	svc := newTestService(&mockReviewRepo{}, &mockGeocoder{}, &mockUploader{}, &mockRecorder{})

	review, err := svc.Get(context.Background(), "missing-id")
	if err != nil {
		t.Fatalf("Get failed: %v", err)
	}
	if review != nil {
		t.Errorf("review = %+v, want nil", review)
	}
}

func TestService_MapCenter(t *testing.T) {
	tests := []struct {
		name     string
		address  string
		lookupFn func(ctx context.Context, address string) (*model.Coordinates, error)
		want     model.Coordinates
	}{
		{
			name:    "住所が空なら既定の中心",
			address: "",
			want:    DefaultMapCenter,
		},
		{
			name:    "ジオコーディング成功なら結果の座標",
			address: "Calle Larios, Málaga",
			lookupFn: func(ctx context.Context, address string) (*model.Coordinates, error) {
				return &model.Coordinates{Lat: 36.7194, Lon: -4.4200}, nil
			},
			want: model.Coordinates{Lat: 36.7194, Lon: -4.4200},
		},
		{
			name:    "ジオコーディング失敗なら既定の中心",
			address: "somewhere",
			lookupFn: func(ctx context.Context, address string) (*model.Coordinates, error) {
				return nil, errors.New("nominatim unreachable")
			},
			want: DefaultMapCenter,
		},
		{
			name:    "結果なしなら既定の中心",
			address: "nowhere",
			lookupFn: func(ctx context.Context, address string) (*model.Coordinates, error) {
				return nil, nil
			},
			want: DefaultMapCenter,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			svc := newTestService(&mockReviewRepo{}, &mockGeocoder{lookupFn: tt.lookupFn}, &mockUploader{}, &mockRecorder{})

			got := svc.MapCenter(context.Background(), tt.address)
			if got != tt.want {
				t.Errorf("MapCenter = %+v, want %+v", got, tt.want)
			}
		})
	}
}
