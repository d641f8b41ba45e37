package selector

import (
	"sort"

	"go.uber.org/zap"

	"wisefido-study-monitor/internal/models"
)

// SelectCanonical 在同一病人的多个同类文件中选出唯一的正典文件，
// 其余文件整体忽略（不合并），避免部分重叠的导出被重复计数。
//
// 排序规则：按 (大小, 修改时间) 字典序降序。大小是主要信号——
// 更大的导出通常包含更完整的历史；修改时间用来打破平手。
// 返回值：(正典文件, 被忽略的文件)；输入为空时正典为 nil。
func SelectCanonical(files []models.FileDescriptor, logger *zap.Logger) (*models.FileDescriptor, []models.FileDescriptor) {
	if len(files) == 0 {
		return nil, nil
	}

	// 只有一个文件时无条件选中，不参与排序
	if len(files) == 1 {
		best := files[0]
		return &best, nil
	}

	ranked := make([]models.FileDescriptor, len(files))
	copy(ranked, files)

	sort.SliceStable(ranked, func(i, j int) bool {
		if ranked[i].Size != ranked[j].Size {
			return ranked[i].Size > ranked[j].Size
		}
		return ranked[i].ModifiedTime.After(ranked[j].ModifiedTime)
	})

	best := ranked[0]
	ignored := ranked[1:]

	logger.Info("Canonical source selected",
		zap.String("patient_id", best.PatientID),
		zap.String("file", best.Name),
		zap.Int64("size", best.Size),
		zap.Time("modified", best.ModifiedTime),
		zap.Int("ignored_count", len(ignored)),
	)
	for _, f := range ignored {
		logger.Debug("Source file ignored",
			zap.String("patient_id", f.PatientID),
			zap.String("file", f.Name),
			zap.Int64("size", f.Size),
		)
	}

	return &best, ignored
}
