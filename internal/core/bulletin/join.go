package bulletin

import (
	"fmt"

	"github.com/weisyn/zkcallback/internal/core/object"
	"github.com/weisyn/zkcallback/internal/core/tikcrypto"
)

// JoinAuthorizer 加入授权器
type JoinAuthorizer interface {
	// Authorize 检查新承诺是否允许加入；拒绝时返回包装了 ErrJoinRejected 的错误
	Authorize(com object.Com, pubData []byte) error
}

// AllowAllJoins 中心化部署下接受任意加入
type AllowAllJoins struct{}

// Authorize 实现 JoinAuthorizer
func (AllowAllJoins) Authorize(object.Com, []byte) error { return nil }

// SignedJoins 要求 pubData 为服务方对承诺的签名
type SignedJoins struct {
	PK tikcrypto.TicketKey
}

// Authorize 实现 JoinAuthorizer
func (s SignedJoins) Authorize(com object.Com, pubData []byte) error {
	if len(pubData) == 0 {
		return fmt.Errorf("%w: missing signature", ErrJoinRejected)
	}
	ok, err := s.PK.Verify(com, pubData)
	if err != nil {
		return fmt.Errorf("%w: %v", ErrJoinRejected, err)
	}
	if !ok {
		return fmt.Errorf("%w: bad signature", ErrJoinRejected)
	}
	return nil
}
