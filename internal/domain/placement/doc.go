// Package placement содержит доменную модель распределения студентов
// по местам стажировок (plazas).
//
// Пакет определяет:
//
//   - Сущности: Workshop, Company, Slot, Student, DocumentBundle, Internship
//   - Таблицы переходов для компаний, документов, стажировок и мест
//   - Фильтры допуска (EligibilityFilters): возраст, пол, специальность
//   - CapacityLedger: учёт занятости мест внутри транзакции
//   - Интерфейсы репозитория: Tx, TxManager, InternshipFinder
//
// # Инвариант вместимости
//
// Занятость места не хранится, а вычисляется: это количество стажировок
// в состояниях Pending или InProgress, ссылающихся на место. В любой момент
// занятость не превышает вместимость. Решение о резервировании принимается
// только внутри той же транзакции, которая создаёт стажировки:
//
//	err := txm.WithinTx(ctx, func(ctx context.Context, tx Tx) error {
//	    res, err := ledger.TryReserve(ctx, tx, slotID, len(students))
//	    if err != nil {
//	        return err
//	    }
//	    return res.Fulfil(ctx, tx, internships)
//	})
//
// Значения, прочитанные вне транзакции (например, для отображения),
// носят справочный характер и никогда не используются для записи.
package placement
