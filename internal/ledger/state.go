package ledger

import "RescueHub/internal/models"

// 案件状态机的合法转换。
// 幸福路径 open → assigned → in_progress → resolved → closed，
// open 可直接 closed（重复/无效案件），
// 失去全部活跃指派时 assigned/in_progress 回退 open，
// resolved 允许从任意非终态进入（求助者可自行解决零指派的案件）。
var transitions = map[models.CaseStatus][]models.CaseStatus{
	models.CaseOpen:       {models.CaseAssigned, models.CaseResolved, models.CaseClosed},
	models.CaseAssigned:   {models.CaseInProgress, models.CaseOpen, models.CaseResolved, models.CaseClosed},
	models.CaseInProgress: {models.CaseAssigned, models.CaseOpen, models.CaseResolved, models.CaseClosed},
	models.CaseResolved:   {models.CaseClosed},
	models.CaseClosed:     {},
}

// canTransition 判断 from → to 是否合法
func canTransition(from, to models.CaseStatus) bool {
	for _, next := range transitions[from] {
		if next == to {
			return true
		}
	}
	return false
}
