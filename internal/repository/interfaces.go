// Package repository はデータ永続化のインターフェースを定義する。
package repository

import (
	"context"

	"github.com/carlosssgaalvez/reviews-examen/internal/model"
)

// UserRepository はユーザーデータの永続化インターフェース。
type UserRepository interface {
	// FindByEmail は指定emailのユーザーを取得する。見つからない場合はnilを返す。
	FindByEmail(ctx context.Context, email string) (*model.User, error)

	// UpsertOnFirstLogin は初回ログイン時のfind-or-create操作。
	// emailのレコードが存在しない場合は作成時刻=now、拡張コレクション空で作成し、
	// 既に存在する場合は既存レコードを変更せずそのまま返す。
	// 同一emailの同時初回ログインに対して実質的にアトミックであること。
	UpsertOnFirstLogin(ctx context.Context, email, name, picture string) (*model.User, error)
}

// ReviewRepository はレビューデータの永続化インターフェース。
type ReviewRepository interface {
	// Create はレビューを作成する。
	Create(ctx context.Context, review *model.Review) error

	// FindByID は指定IDのレビューを取得する。見つからない場合はnilを返す。
	FindByID(ctx context.Context, id string) (*model.Review, error)

	// ListAll は全レビューを作成日時の降順で返す。
	ListAll(ctx context.Context) ([]*model.Review, error)
}
