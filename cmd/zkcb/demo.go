package main

import (
	"context"
	"crypto/rand"
	"fmt"

	"github.com/pterm/pterm"
	"github.com/spf13/cobra"

	"github.com/weisyn/zkcallback/internal/app"
	"github.com/weisyn/zkcallback/internal/core/fold"
	"github.com/weisyn/zkcallback/internal/core/interaction"
	"github.com/weisyn/zkcallback/internal/core/object"
	"github.com/weisyn/zkcallback/internal/core/scan"
	"github.com/weisyn/zkcallback/internal/core/service"
	"github.com/weisyn/zkcallback/internal/core/user"
	"github.com/weisyn/zkcallback/internal/core/zkproof"
	"github.com/weisyn/zkcallback/internal/demo"
)

var demoFlags struct {
	Award uint64
}

// demoCmd 演示命令
var demoCmd = &cobra.Command{
	Use:   "demo",
	Short: "运行端到端演示（进程内账本与服务方）",
}

// demoSimpleCmd 交互 -> 调用 -> 批量扫描
var demoSimpleCmd = &cobra.Command{
	Use:   "simple",
	Short: "使用令牌、服务方加分、按批宽扫描入账",
	RunE: func(cmd *cobra.Command, args []string) error {
		return withApp(func(ctx context.Context, c *app.Components) error {
			u, em, err := useToken(ctx, c)
			if err != nil {
				return err
			}
			s := &scan.Scanner[demo.Tokens]{
				Name:     "tokens",
				Methods:  demo.Methods(),
				Width:    c.Config.Protocol.ScanBatch,
				ObjDepth: c.Config.Protocol.ObjectTreeDepth,
				CbDepth:  c.Config.Protocol.CallbackTreeDepth,
			}
			sk, err := spin("编译扫描电路", func() (*zkproof.Keys, error) {
				return s.GenerateKeys(ctx, c.CircuitManager)
			})
			if err != nil {
				return err
			}
			pterm.Info.Printfln("扫描电路约束数: %d", sk.NbConstraints())

			for round := 1; ; round++ {
				now := object.Time(c.Clock.Epoch())
				sem, next, pub, err := s.ScanAndProve(ctx, rand.Reader, c.Prover, sk, u, c.ObjectLedger, c.CallbackLedger, now)
				if err != nil {
					return fmt.Errorf("第 %d 轮扫描失败: %w", round, err)
				}
				if err := service.ApproveScan(ctx, c.Service, sem, pub, sk.VK); err != nil {
					return fmt.Errorf("第 %d 轮扫描未被接受: %w", round, err)
				}
				u = next
				pterm.Success.Printfln("第 %d 轮扫描已入账: 剩余=%d, 收敛=%v", round, u.Tickets.Remaining(), u.ZK.IsIngestOver)
				if u.ZK.IsIngestOver {
					break
				}
			}
			if err := report(u, em); err != nil {
				return err
			}
			return listRecords(ctx, c)
		})
	},
}

// demoFoldCmd 交互 -> 调用 -> 折叠扫描
var demoFoldCmd = &cobra.Command{
	Use:   "fold",
	Short: "使用令牌、服务方加分、以折叠证明一次性扫描入账",
	RunE: func(cmd *cobra.Command, args []string) error {
		return withApp(func(ctx context.Context, c *app.Components) error {
			u, em, err := useToken(ctx, c)
			if err != nil {
				return err
			}
			p := c.Config.Protocol
			now := object.Time(c.Clock.Epoch())
			prep, err := fold.PrepareScan(ctx, rand.Reader, "tokens", demo.Methods(), u, c.ObjectLedger, c.CallbackLedger, p.CallbackTreeDepth, now)
			if err != nil {
				return err
			}
			pterm.Info.Printfln("折叠步数: %d", len(prep.Inputs))

			eng, err := fold.NewSequentialEngine[fold.FoldInputVar](ctx, prep.Circuit, c.CircuitManager, c.Prover, c.Verifier, rand.Reader, c.Logger)
			if err != nil {
				return err
			}
			bk, err := fold.BindingKeys[demo.Tokens](ctx, c.CircuitManager)
			if err != nil {
				return err
			}
			if err := fold.Fold(ctx, eng, prep); err != nil {
				return err
			}
			fp, err := fold.Finalize(ctx, c.Prover, bk, eng, prep)
			if err != nil {
				return err
			}
			if err := service.ApproveFoldedScan(ctx, c.Service, "tokens", demo.Methods(), fp); err != nil {
				return fmt.Errorf("折叠扫描未被接受: %w", err)
			}
			pterm.Success.Printfln("折叠扫描已入账: steps=%d", fp.NumSteps)
			if err := report(prep.Final, em); err != nil {
				return err
			}
			return listRecords(ctx, c)
		})
	},
}

func init() {
	demoCmd.PersistentFlags().Uint64Var(&demoFlags.Award, "award", 10, "服务方通过回调增加的积分")
	demoCmd.AddCommand(demoSimpleCmd)
	demoCmd.AddCommand(demoFoldCmd)
}

// withApp 启动进程内应用并在结束后停止
func withApp(fn func(ctx context.Context, c *app.Components) error) error {
	a, err := app.BootstrapApp(app.WithConfigFile(globalFlags.ConfigFile))
	if err != nil {
		return err
	}
	defer func() {
		if err := a.Stop(); err != nil {
			pterm.Warning.Println(err.Error())
		}
	}()
	pterm.DefaultHeader.WithBackgroundStyle(pterm.NewStyle(pterm.BgBlue)).Println("zkcb demo")
	return fn(context.Background(), a.Components())
}

// useToken 加入、使用令牌（签发撤销与加分两张票据），服务方调用加分票据
func useToken(ctx context.Context, c *app.Components) (*user.User[demo.Tokens], *interaction.ExecutedMethod, error) {
	u, err := user.New(demo.NewTokens(0), rand.Reader)
	if err != nil {
		return nil, nil, err
	}
	auth, err := c.Service.ApproveJoin(ctx, u.Commit())
	if err != nil {
		return nil, nil, err
	}
	if err := interaction.Join(ctx, u, c.ObjectLedger, auth); err != nil {
		return nil, nil, err
	}
	pterm.Success.Println("用户已加入对象账本")

	depth := c.Config.Protocol.ObjectTreeDepth
	it := demo.UseToken("use-token", true, 0)
	keys, err := spin("编译交互电路", func() (*zkproof.Keys, error) {
		return interaction.GenerateKeys(ctx, c.CircuitManager, it, depth)
	})
	if err != nil {
		return nil, nil, err
	}
	w, err := c.ObjectLedger.Witness(ctx, u.Commit())
	if err != nil {
		return nil, nil, err
	}
	em, next, err := interaction.Interact(ctx, rand.Reader, c.Prover, keys, u, it, c.Service.PublicKey(), interaction.Input{Memb: *w})
	if err != nil {
		return nil, nil, err
	}
	if err := c.Service.ApproveInteractionAndStore(ctx, em, nil, keys.VK); err != nil {
		return nil, nil, fmt.Errorf("交互未被接受: %w", err)
	}
	pterm.Success.Printfln("交互已入账: 票据数=%d", len(em.CbTikList))

	award := em.CbTikList[demo.MethodAward]
	if _, err := c.Service.CallAndPublish(ctx, award, object.FromUint64(demoFlags.Award)); err != nil {
		return nil, nil, err
	}
	pterm.Success.Printfln("服务方已调用加分票据: +%d", demoFlags.Award)
	return next, em, nil
}

// spin 在耗时操作期间显示进度
func spin[T any](text string, fn func() (T, error)) (T, error) {
	sp, _ := pterm.DefaultSpinner.WithText(text).Start()
	out, err := fn()
	if sp != nil {
		if err != nil {
			sp.Fail(err.Error())
		} else {
			sp.Success(text)
		}
	}
	return out, err
}

func report(u *user.User[demo.Tokens], em *interaction.ExecutedMethod) error {
	data := pterm.TableData{
		{"字段", "值"},
		{"持有令牌", fmt.Sprintf("%v", u.Data.HasToken())},
		{"积分", u.Data.Points.String()},
		{"回调哈希", u.ZK.CallbackHash.String()},
		{"首次交互作废符", em.OldNullifier.String()},
		{"待扫描票据", fmt.Sprintf("%d", u.Tickets.Remaining())},
	}
	return pterm.DefaultTable.WithHasHeader().WithHeaderRowSeparator("-").WithData(data).Render()
}

// listRecords 详细模式下列出服务方保存的交互记录
func listRecords(ctx context.Context, c *app.Components) error {
	if !globalFlags.Verbose {
		return nil
	}
	recs, err := c.Service.Records(ctx)
	if err != nil {
		return err
	}
	data := pterm.TableData{{"ID", "类型", "纪元", "票据数"}}
	for _, r := range recs {
		data = append(data, []string{r.ID, string(r.Kind), fmt.Sprintf("%d", r.Epoch), fmt.Sprintf("%d", len(r.Tickets))})
	}
	return pterm.DefaultTable.WithHasHeader().WithData(data).Render()
}
