// Package demo 提供演示与集成测试共用的应用定义：
// 一个持有通行令牌与积分的用户，以及"使用令牌"交互和两个回调（撤销令牌、增加积分）。
package demo

import (
	"github.com/consensys/gnark-crypto/ecc/bn254/fr"
	"github.com/consensys/gnark/frontend"

	"github.com/weisyn/zkcallback/internal/core/interaction"
	"github.com/weisyn/zkcallback/internal/core/object"
	"github.com/weisyn/zkcallback/internal/core/user"
)

// 回调方法ID
const (
	MethodRevoke uint64 = 0
	MethodAward  uint64 = 1
)

// Tokens 用户数据：Token 为 1 表示持有通行令牌，Points 为累计积分
type Tokens struct {
	Token  fr.Element `json:"token"`
	Points fr.Element `json:"points"`
}

// Serialize 实现 user.UserData
func (t Tokens) Serialize() []fr.Element {
	return []fr.Element{t.Token, t.Points}
}

// NewTokens 持有令牌、积分为 points 的数据
func NewTokens(points uint64) Tokens {
	return Tokens{Token: object.FromUint64(1), Points: object.FromUint64(points)}
}

// HasToken 是否持有令牌
func (t Tokens) HasToken() bool {
	return t.Token.IsOne()
}

// Revoke 撤销令牌回调
func Revoke(expirable bool, expiration object.Time) interaction.Callback[Tokens] {
	return interaction.Callback[Tokens]{
		MethodID:   MethodRevoke,
		Expirable:  expirable,
		Expiration: expiration,
		Method: func(u *user.User[Tokens], _ fr.Element) *user.User[Tokens] {
			out := u.Clone()
			out.Data.Token.SetZero()
			return out
		},
		Predicate: func(_ frontend.API, u user.UserVar, _ frontend.Variable) (user.UserVar, error) {
			out := u.Copy()
			out.Data[0] = 0
			return out, nil
		},
	}
}

// Award 增加积分回调，参数为积分数
func Award(expirable bool, expiration object.Time) interaction.Callback[Tokens] {
	return interaction.Callback[Tokens]{
		MethodID:   MethodAward,
		Expirable:  expirable,
		Expiration: expiration,
		Method: func(u *user.User[Tokens], arg fr.Element) *user.User[Tokens] {
			out := u.Clone()
			out.Data.Points.Add(&out.Data.Points, &arg)
			return out
		},
		Predicate: func(api frontend.API, u user.UserVar, arg frontend.Variable) (user.UserVar, error) {
			out := u.Copy()
			out.Data[1] = api.Add(u.Data[1], arg)
			return out, nil
		},
	}
}

// Methods 扫描时使用的回调方法表
func Methods() []interaction.Callback[Tokens] {
	return []interaction.Callback[Tokens]{Revoke(false, 0), Award(false, 0)}
}

// UseToken 使用令牌：要求持有令牌且数据不变，注册撤销与加分两个回调
//
// expiration 为 0 时回调不过期。
func UseToken(name string, checkMembership bool, expiration object.Time) *interaction.Interaction[Tokens] {
	expirable := expiration > 0
	return &interaction.Interaction[Tokens]{
		Name: name,
		Method: func(u *user.User[Tokens], _, _ []fr.Element) (*user.User[Tokens], error) {
			return u, nil
		},
		Predicate: func(api frontend.API, old, next user.UserVar, _, _ []frontend.Variable) (frontend.Variable, error) {
			hasToken := api.IsZero(api.Sub(old.Data[0], 1))
			same := api.And(
				api.IsZero(api.Sub(next.Data[0], old.Data[0])),
				api.IsZero(api.Sub(next.Data[1], old.Data[1])),
			)
			return api.And(hasToken, same), nil
		},
		Callbacks:       []interaction.Callback[Tokens]{Revoke(expirable, expiration), Award(expirable, expiration)},
		CheckMembership: checkMembership,
	}
}
